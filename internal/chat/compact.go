package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/tranminh/seibot/internal/llm"
	"github.com/tranminh/seibot/internal/session"
)

// commit appends the finished turn pair, runs compaction, and persists.
func (a *Assistant) commit(ctx context.Context, sessionID string, sess *session.Session, userText, assistantText string) error {
	if assistantText == "" {
		assistantText = "(sent an image)"
	}
	sess.Turns = append(sess.Turns, session.UserTurn(userText), session.AssistantTurn(assistantText))

	a.maybeCompact(ctx, sess)

	if err := a.store.Save(ctx, sessionID, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// maybeCompact summarizes and truncates the turn list once it exceeds
// the high-water mark. The truncation only happens after a non-empty
// summary is obtained, so a failed summarization never corrupts the
// stored turns — it just postpones compaction.
func (a *Assistant) maybeCompact(ctx context.Context, sess *session.Session) {
	if len(sess.Turns) <= a.opts.MaxTurns {
		return
	}

	transcript := buildTranscript(sess.Turns, a.opts.TranscriptWindow)
	if transcript == "" {
		return
	}

	var resp *llm.Response
	err := a.retry.Do(ctx, a.logger, func() error {
		var callErr error
		resp, callErr = a.llm.Messages(ctx, llm.Request{
			Model:     a.opts.Model,
			MaxTokens: a.opts.SummaryMaxTokens,
			System:    summarizePrompt,
			Messages:  []llm.Message{llm.UserText(transcript)},
		})
		return callErr
	})
	if err != nil {
		a.logger.Warn("summarization failed, keeping full history", "error", err)
		return
	}

	summary := resp.Text()
	if summary == "" {
		a.logger.Warn("summarization returned empty text, keeping full history")
		return
	}

	sess.Summary = summary
	if len(sess.Turns) > a.opts.KeepTurns {
		sess.Turns = sess.Turns[len(sess.Turns)-a.opts.KeepTurns:]
	}
	a.logger.Debug("session compacted", "kept_turns", len(sess.Turns))
}

// buildTranscript flattens the most recent turns into a plain narrative
// for the summarizer, one line per text-bearing turn.
func buildTranscript(turns []session.Turn, window int) string {
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	var lines []string
	for _, t := range turns {
		if t.Role != "user" && t.Role != "assistant" {
			continue
		}
		for _, seg := range t.Segments {
			if seg.Type == "text" && seg.Text != "" {
				lines = append(lines, strings.ToUpper(t.Role)+": "+seg.Text)
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}
