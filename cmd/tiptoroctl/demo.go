package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
)

type demoOptions struct {
	dir      string
	question string
	answer   string
	userID   string
}

func newDemoCmd(root *rootOptions) *cobra.Command {
	opts := &demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the mistake pipeline offline with canned skills",
		Long: `demo runs the default pipeline against the skill descriptors on disk with
built-in handlers in place of the model calls. The task suspends for human
verification, the recognized text is accepted as verified, and the task is
resumed to completion.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := root.logger(cmd)
			reg := gateway.NewRegistry(log)
			if err := reg.Discover(opts.dir); err != nil {
				return err
			}
			_, err := runDemo(cmd.Context(), reg, log, cmd.OutOrStdout(), opts)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.dir, "dir", DefaultSkillsDir, "Skills directory")
	cmd.Flags().StringVar(&opts.question, "question", "Solve 2x + 3 = 11", "Question text the vision step recognizes")
	cmd.Flags().StringVar(&opts.answer, "answer", "x = 7", "Answer text the vision step recognizes")
	cmd.Flags().StringVar(&opts.userID, "user", "demo-student", "User ID stored on the task")
	return cmd
}

// runDemo binds canned handlers to the default pipeline's skills, runs a task
// to its verification point, verifies it and resumes it.
func runDemo(ctx context.Context, reg *gateway.Registry, log *slog.Logger, out io.Writer, opts *demoOptions) (*gateway.TaskContext, error) {
	for name, h := range cannedHandlers(opts) {
		if err := reg.Bind(name, h); err != nil {
			return nil, err
		}
	}
	pipeline := gateway.NewDefaultPipeline(reg, log)

	tc := gateway.NewTaskContext(opts.userID)
	tc.Source = "demo"
	tc.ImageSource = "demo/photo.jpg"

	fmt.Fprintf(out, "running pipeline %s (%s)\n", pipeline.Name(), strings.Join(pipeline.Steps(), " -> "))
	if err := pipeline.Run(ctx, tc); err != nil {
		return nil, err
	}
	printStatus(out, "run", tc)
	if tc.Status != gateway.StatusAwaitingHuman {
		return tc, fmt.Errorf("expected task to await verification, got %s", tc.Status)
	}

	tc.VerifiedQuestionText = tc.RawQuestionText
	tc.VerifiedAnswerText = tc.RawAnswerText
	tc.Subject = "math"
	fmt.Fprintln(out, "verified recognized text")

	if err := pipeline.Resume(ctx, tc, tc.LastSkill); err != nil {
		return nil, err
	}
	printStatus(out, "resume", tc)

	data, err := json.MarshalIndent(tc, "", "  ")
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, string(data))
	return tc, nil
}

func printStatus(out io.Writer, phase string, tc *gateway.TaskContext) {
	fmt.Fprintf(out, "%s: status=%s last_skill=%s\n", phase, tc.Status, tc.LastSkill)
	for _, e := range tc.Errors() {
		fmt.Fprintf(out, "  error in %s: %s\n", e.Skill, e.Message)
	}
}

func cannedHandlers(opts *demoOptions) map[string]gateway.Handler {
	return map[string]gateway.Handler{
		gateway.SkillVisionPerception: gateway.HandlerFunc(func(_ context.Context, tc *gateway.TaskContext) error {
			tc.RawQuestionText = opts.question
			tc.RawAnswerText = opts.answer
			tc.VisionConfidence["question_ocr"] = 1
			tc.VisionConfidence["answer_ocr"] = 1
			return nil
		}),
		gateway.SkillIngestAndVerify: gateway.HandlerFunc(func(_ context.Context, tc *gateway.TaskContext) error {
			if tc.VerifiedQuestionText == "" {
				return errors.New("question has not been verified")
			}
			id := int64(1)
			tc.QuestionID = &id
			return nil
		}),
		gateway.SkillCognitiveAnalysis: gateway.HandlerFunc(func(_ context.Context, tc *gateway.TaskContext) error {
			tc.KnowledgeNodes = []string{"linear equations"}
			tc.AnalysisSummary = "Answer recorded for review."
			tc.SimilarQuestionKeywords = []string{"solve for x"}
			return nil
		}),
	}
}
