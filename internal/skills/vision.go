package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/tiptoro/tiptoro-api/internal/gateway"
	"github.com/tiptoro/tiptoro-api/internal/llm"
)

var (
	// ErrMissingImage is returned when a task has no uploaded image.
	ErrMissingImage = errors.New("image_source is required")

	// ErrNoQuestionDetected is returned when the model finds no question in
	// the photo.
	ErrNoQuestionDetected = errors.New("no question text recognized in image")
)

const visionPrompt = `You read photos of exam questions that a student answered wrongly.
Transcribe the printed question exactly, including options and formulas (use LaTeX for math).
Transcribe the student's handwritten answer separately; leave it empty if there is none.
Reply with a JSON object:
{"question_text": string, "answer_text": string, "question_confidence": number, "answer_confidence": number}
Confidences are between 0 and 1.`

type visionResult struct {
	QuestionText       string  `json:"question_text"`
	AnswerText         string  `json:"answer_text"`
	QuestionConfidence float64 `json:"question_confidence"`
	AnswerConfidence   float64 `json:"answer_confidence"`
}

type visionPerception struct {
	llm     LLM
	storage ObjectReader
	logger  *slog.Logger
}

func (s *visionPerception) Handle(ctx context.Context, tc *gateway.TaskContext) error {
	if tc.ImageSource == "" {
		return ErrMissingImage
	}

	data, err := s.storage.Get(ctx, tc.ImageSource)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	resp, err := s.llm.Call(ctx, RoleVisionPerception, []llm.Message{
		llm.SystemMessage(visionPrompt),
		llm.UserMessage("Transcribe this photo.", llm.Image{Data: data, MIMEType: imageMIMEType(tc.ImageSource, data)}),
	}, llm.WithJSONMode(), llm.WithTemperature(0))
	if err != nil {
		return fmt.Errorf("vision model call failed: %w", err)
	}

	var out visionResult
	if err := llm.DecodeJSON(resp.Content, &out); err != nil {
		return err
	}
	out.QuestionText = strings.TrimSpace(out.QuestionText)
	out.AnswerText = strings.TrimSpace(out.AnswerText)
	if out.QuestionText == "" {
		return ErrNoQuestionDetected
	}

	url := s.storage.PublicURL(tc.ImageSource)
	tc.RawQuestionText = out.QuestionText
	tc.RawAnswerText = out.AnswerText
	tc.CleanQuestionImageURL = url
	if out.AnswerText != "" {
		tc.HandwrittenAnswerImageURL = url
	}
	if tc.VisionConfidence == nil {
		tc.VisionConfidence = make(map[string]float64, 2)
	}
	tc.VisionConfidence["question_ocr"] = clamp01(out.QuestionConfidence)
	tc.VisionConfidence["answer_ocr"] = clamp01(out.AnswerConfidence)

	s.logger.InfoContext(ctx, "image recognized",
		"task_id", tc.ID(),
		"question_length", len(out.QuestionText),
		"has_answer", out.AnswerText != "",
		"question_confidence", tc.VisionConfidence["question_ocr"])
	return nil
}

// imageMIMEType prefers the key's extension and falls back to sniffing.
func imageMIMEType(key string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(key))); strings.HasPrefix(t, "image/") {
		return t
	}
	return http.DetectContentType(data)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
