package flow

import (
	"regexp"
	"slices"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

// QuestionDetector decides whether a plain-text model answer is really an
// unresolved question to the user.
type QuestionDetector interface {
	// Detect returns the question to forward to the interaction tool.
	Detect(text string) (question string, ok bool)
}

// QuestionDetectorFunc adapts a function to QuestionDetector.
type QuestionDetectorFunc func(text string) (string, bool)

// Detect implements QuestionDetector.
func (f QuestionDetectorFunc) Detect(text string) (string, bool) { return f(text) }

// NeverAsk disables implicit question detection.
var NeverAsk QuestionDetector = QuestionDetectorFunc(func(string) (string, bool) { return "", false })

// DefaultQuestionPrefixes start request-style sentences that expect a reply.
// Closing courtesies such as "let me know if ..." are left out: they end
// finished answers.
var DefaultQuestionPrefixes = []string{
	"could you", "can you", "would you", "will you", "do you", "did you", "are you",
	"please provide", "please confirm", "please specify", "please tell me",
	"should i", "shall i",
}

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// HeuristicQuestionDetector flags text whose last sentence ends in a question
// mark or opens with a request phrase. Structured answers are never questions.
type HeuristicQuestionDetector struct {
	Prefixes []string
}

var _ QuestionDetector = HeuristicQuestionDetector{}

// Detect implements QuestionDetector.
func (h HeuristicQuestionDetector) Detect(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	if _, structured := util.ExtractJSON(trimmed); structured {
		return "", false
	}

	last := lastSentence(trimmed)
	if strings.HasSuffix(last, "?") {
		return trimmed, true
	}

	prefixes := h.Prefixes
	if prefixes == nil {
		prefixes = DefaultQuestionPrefixes
	}
	lower := strings.ToLower(last)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return trimmed, true
		}
	}
	return "", false
}

func lastSentence(text string) string {
	lines := strings.Split(text, "\n")
	line := ""
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			line = l
			break
		}
	}
	sentences := sentenceEnd.Split(line, -1)
	return strings.TrimSpace(sentences[len(sentences)-1])
}

// SilencePolicy decides whether an empty provider response can count as success.
type SilencePolicy interface {
	// Resolve inspects the history preceding the empty response and returns
	// the final text to report.
	Resolve(history []core.Turn) (text string, ok bool)
}

// SilenceIsFailure never accepts an empty response.
type SilenceIsFailure struct{}

// Resolve implements SilencePolicy.
func (SilenceIsFailure) Resolve([]core.Turn) (string, bool) { return "", false }

// DefaultTerminalTools are the tool names whose completion may legitimately
// be followed by an empty model response.
var DefaultTerminalTools = []string{"display_to_user", "send_message", DefaultAskUserTool}

// TerminalToolSilence treats silence right after a terminal tool call as
// success, answering with that tool's result text or "Done.".
//
// This can mask a genuine provider failure that follows such a call.
type TerminalToolSilence struct {
	Tools []string
}

var _ SilencePolicy = TerminalToolSilence{}

// Resolve implements SilencePolicy.
func (p TerminalToolSilence) Resolve(history []core.Turn) (string, bool) {
	if len(history) < 2 {
		return "", false
	}

	results := history[len(history)-1]
	call := history[len(history)-2]
	if results.Role != core.RoleUser || call.Role != core.RoleModel {
		return "", false
	}

	tools := p.Tools
	if tools == nil {
		tools = DefaultTerminalTools
	}

	terminal := ""
	for _, fc := range call.FunctionCalls() {
		if slices.Contains(tools, fc.Name) {
			terminal = fc.ID
		}
	}
	if terminal == "" {
		return "", false
	}

	for _, fr := range results.FunctionResponses() {
		if fr.ID != terminal {
			continue
		}
		if fr.Failed() {
			return "", false
		}
		if text := strings.TrimSpace(model.ResponseText(fr)); text != "" {
			return text, true
		}
	}
	return "Done.", true
}
