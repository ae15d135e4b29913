package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/filtering"
	"github.com/spigell/agency-onboarder/internal/jobs"
	"github.com/spigell/agency-onboarder/internal/knowledge"
	"github.com/spigell/agency-onboarder/internal/utils"
)

const PromptAllModels = "All models"

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Work with the job feed",
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Load job listings from a JSON file into the store",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *application) error {
			listings, err := jobs.LoadFile(args[0])
			if err != nil {
				return err
			}
			n, err := a.jobs.Save(ctx, listings...)
			if err != nil {
				return err
			}
			a.logger.Info("jobs imported", zap.Int("count", n), zap.String("file", args[0]))
			return nil
		})
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of the job feed",
	Run: func(cmd *cobra.Command, _ []string) {
		withApp(func(ctx context.Context, a *application) error {
			f := filtersFromFlags(cmd)
			page, _ := cmd.Flags().GetInt("page")
			if page < 1 {
				page = 1
			}

			listings, err := a.jobs.Search(ctx, f, (page-1)*jobs.PageSize)
			if err != nil {
				return err
			}
			total, err := a.jobs.Count(ctx, f)
			if err != nil {
				return err
			}
			printJobs(listings, nil)
			fmt.Printf("page %d, %d jobs in total\n", page, total)
			return nil
		})
	},
}

var jobsFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Show the jobs that match what a thread has learned about the agency",
	Run: func(cmd *cobra.Command, _ []string) {
		withApp(func(ctx context.Context, a *application) error {
			threadID, _ := cmd.Flags().GetString("thread")
			withAI, _ := cmd.Flags().GetBool("ai")

			k := knowledge.Default()
			if threadID != "" {
				state, err := a.orchestrator.State(ctx, threadID)
				if err != nil {
					return err
				}
				k = state.Knowledge
			}

			all, err := a.jobs.List(ctx, filtersFromFlags(cmd))
			if err != nil {
				return err
			}

			models, err := pickModels(cmd, a)
			if err != nil {
				return err
			}
			aiCfg := a.aiFilter(withAI, models)
			cfg := &filtering.Config{Knowledge: k, ExcludeFile: a.config.ExcludeFile, AI: &aiCfg}

			steps := filtering.Default()
			for _, name := range mustStrings(cmd, "skip") {
				filtering.DisableByName(steps, name, "skip requested via flag")
			}

			res, err := filtering.Run(ctx, cfg, filtering.Deps{Logger: a.logger, Scorer: a.scorer}, steps, all)
			if err != nil {
				return err
			}

			for _, s := range filtering.Describe(steps) {
				a.logger.Debug("filter status",
					zap.String("name", s.Name),
					zap.Bool("enabled", s.Enabled),
					zap.String("reason", s.Reason),
					zap.Any("details", s.Details),
				)
			}
			printJobs(res.Jobs, res.Ratings)
			fmt.Printf("%d of %d jobs left\n", len(res.Jobs), len(all))
			return nil
		})
	},
}

var jobsScoreCmd = &cobra.Command{
	Use:   "score <job-id>",
	Short: "Ask the models how well a stored job suits the agency",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *application) error {
			job, models, brief, err := jobRequest(ctx, cmd, a, args[0])
			if err != nil {
				return err
			}
			ratings, err := a.scorer.Score(ctx, *job, models, brief)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tSCORE\tBAND\tREASON")
			for _, r := range ratings {
				if r.Error != "" {
					fmt.Fprintf(w, "%s\t-\t-\terror: %s\n", r.Model, r.Error)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Model, r.Score, r.Band, r.Reason)
			}
			return w.Flush()
		})
	},
}

var jobsProposeCmd = &cobra.Command{
	Use:   "propose <job-id>",
	Short: "Draft proposals for a stored job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *application) error {
			job, models, brief, err := jobRequest(ctx, cmd, a, args[0])
			if err != nil {
				return err
			}
			proposals, err := a.scorer.Propose(ctx, *job, models, brief)
			if err != nil {
				return err
			}
			for _, p := range proposals {
				fmt.Printf("=== %s ===\n", p.Model)
				if p.Error != "" {
					fmt.Printf("error: %s\n\n", p.Error)
					continue
				}
				fmt.Printf("%s\n\n", p.Proposal)
			}
			return nil
		})
	},
}

var jobsExcludeCmd = &cobra.Command{
	Use:   "exclude <job-id>...",
	Short: "Hide jobs from every later feed",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *application) error {
			if a.config.ExcludeFile == "" {
				return errors.New("no exclude file configured (set exclude-file or pass --exclude-file)")
			}
			reason, _ := cmd.Flags().GetString("reason")

			var excluded []jobs.Job
			for _, id := range args {
				job, err := a.jobs.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("job %s: %w", id, err)
				}
				excluded = append(excluded, *job)
			}

			list, err := jobs.LoadExcludeList(a.config.ExcludeFile)
			if err != nil {
				return err
			}
			list.Exclude(jobs.ExcludeActorUser, reason, excluded...)
			if err := list.Save(a.config.ExcludeFile); err != nil {
				return err
			}
			a.logger.Info("jobs excluded", zap.Strings("ids", args), zap.String("path", a.config.ExcludeFile))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsImportCmd, jobsListCmd, jobsFilterCmd, jobsScoreCmd, jobsProposeCmd, jobsExcludeCmd)

	for _, c := range []*cobra.Command{jobsListCmd, jobsFilterCmd} {
		c.Flags().String("category", "", "only jobs in this category")
		c.Flags().String("experience", "", "only jobs at this experience level")
		c.Flags().StringP("query", "q", "", "only jobs whose title or description contains this text")
	}
	jobsListCmd.Flags().IntP("page", "p", 1, "page to print")

	jobsFilterCmd.Flags().StringP("thread", "t", "", "thread whose knowledge drives the filters")
	jobsFilterCmd.Flags().Bool("ai", false, "also drop jobs the models rate below suitability.minimum-score")
	jobsFilterCmd.Flags().StringSlice("skip", nil, "filter steps to skip, e.g. --skip hourly_rate,duration")

	for _, c := range []*cobra.Command{jobsFilterCmd, jobsScoreCmd, jobsProposeCmd} {
		c.Flags().StringSliceP("model", "m", nil, "models to ask (default all configured)")
		c.Flags().Bool("pick", false, "choose the model interactively")
	}
	for _, c := range []*cobra.Command{jobsScoreCmd, jobsProposeCmd} {
		c.Flags().StringP("thread", "t", "", "add what this thread learned about the agency to the prompt")
	}

	jobsExcludeCmd.Flags().String("reason", "", "why the jobs are excluded")
}

// withApp builds the application, runs fn and exits non-zero on error.
func withApp(fn func(ctx context.Context, a *application) error) {
	ctx := context.Background()

	logger, err := newLogger("stderr")
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	a, err := newApplication(ctx, logger)
	if err != nil {
		logger.Fatal("starting", zap.Error(err))
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		a.Close()
		logger.Fatal("exiting", zap.Error(err))
	}
}

func filtersFromFlags(cmd *cobra.Command) jobs.Filters {
	category, _ := cmd.Flags().GetString("category")
	level, _ := cmd.Flags().GetString("experience")
	query, _ := cmd.Flags().GetString("query")
	return jobs.Filters{Category: category, ExperienceLevel: level, Query: query}
}

func mustStrings(cmd *cobra.Command, name string) []string {
	values, _ := cmd.Flags().GetStringSlice(name)
	return values
}

// pickModels returns the models named by --model, or lets the user choose
// one when --pick is set. Nil means every configured model.
func pickModels(cmd *cobra.Command, a *application) ([]string, error) {
	if pick, _ := cmd.Flags().GetBool("pick"); !pick {
		return mustStrings(cmd, "model"), nil
	}

	prompt := promptui.Select{
		Label: "Which model?",
		Items: append([]string{PromptAllModels}, a.models.Names()...),
	}
	_, choice, err := prompt.Run()
	if err != nil {
		return nil, err
	}
	if choice == PromptAllModels {
		return nil, nil
	}
	return []string{choice}, nil
}

func jobRequest(ctx context.Context, cmd *cobra.Command, a *application, id string) (*jobs.Job, []string, jobs.Brief, error) {
	job, err := a.jobs.Get(ctx, id)
	if err != nil {
		return nil, nil, jobs.Brief{}, fmt.Errorf("job %s: %w", id, err)
	}
	models, err := pickModels(cmd, a)
	if err != nil {
		return nil, nil, jobs.Brief{}, err
	}

	brief := jobs.Brief{}
	if threadID, _ := cmd.Flags().GetString("thread"); threadID != "" {
		state, err := a.orchestrator.State(ctx, threadID)
		if err != nil {
			return nil, nil, jobs.Brief{}, err
		}
		k := state.Knowledge
		brief.Knowledge = &k
	}
	return job, models, brief, nil
}

func printJobs(listings []jobs.Job, ratings map[string][]jobs.Rating) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tLEVEL\tPAY\tAI")
	for _, j := range listings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", j.ID, utils.TruncateForLog(j.Title, 48), j.Category, j.ExperienceLevel, pay(j), scores(ratings[j.ID]))
	}
	w.Flush()
}

func pay(j jobs.Job) string {
	switch {
	case j.Hourly():
		lo, hi := "?", "?"
		if j.HourlyRateMin != nil {
			lo = fmt.Sprintf("%.0f", *j.HourlyRateMin)
		}
		if j.HourlyRateMax != nil {
			hi = fmt.Sprintf("%.0f", *j.HourlyRateMax)
		}
		return fmt.Sprintf("$%s-%s/h", lo, hi)
	case j.FixedPrice != nil:
		return fmt.Sprintf("$%.0f fixed", *j.FixedPrice)
	}
	return "-"
}

func scores(ratings []jobs.Rating) string {
	parts := make([]string, 0, len(ratings))
	for _, r := range ratings {
		if r.Error != "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%d(%s)", r.Model, r.Score, r.Band))
	}
	return strings.Join(parts, " ")
}
