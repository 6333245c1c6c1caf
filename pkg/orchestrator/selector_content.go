package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/harun/triad/internal/observability"
	"github.com/harun/triad/internal/tracing"
)

// CandidateFunc narrows the eligible roles when the rule table has no answer.
type CandidateFunc func(h *History, roster *Roster) []RoleName

// SpeakerPicker asks the model backend to choose one of the candidates.
type SpeakerPicker interface {
	Pick(ctx context.Context, history []Message, roles []Role, candidates []RoleName) (RoleName, error)
}

// ContentDrivenConfig configures a ContentDriven selector
type ContentDrivenConfig struct {
	Candidates CandidateFunc // defaults to DefaultCandidates
	Picker     SpeakerPicker // nil always takes the first candidate
	CacheSize  int
	Logger     zerolog.Logger
}

// ContentDriven routes by the source of the last message: user to the first
// role, each role to the next one, and the last role to nobody. Unknown
// sources go through candidate restriction and, when more than one role
// remains, the model picker. An answer outside the candidates, or a picker
// error, falls back to the first candidate.
type ContentDriven struct {
	candidates CandidateFunc
	picker     SpeakerPicker
	cache      *lru.Cache[string, RoleName]
	logger     zerolog.Logger

	stats contentDrivenState
}

type contentDrivenState struct {
	RuleHits    int `json:"rule_hits"`
	ModelPicks  int `json:"model_picks"`
	CacheHits   int `json:"cache_hits"`
	Fallbacks   int `json:"fallbacks"`
	Completions int `json:"completions"`
}

// NewContentDriven creates a content-driven selector
func NewContentDriven(cfg ContentDrivenConfig) (*ContentDriven, error) {
	if cfg.Candidates == nil {
		cfg.Candidates = DefaultCandidates
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}
	cache, err := lru.New[string, RoleName](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create pick cache: %w", err)
	}
	return &ContentDriven{
		candidates: cfg.Candidates,
		picker:     cfg.Picker,
		cache:      cache,
		logger:     cfg.Logger,
	}, nil
}

func (s *ContentDriven) Name() string {
	return ModeSelector
}

func (s *ContentDriven) Select(ctx context.Context, h *History, roster *Roster) (RoleName, bool) {
	last, ok := h.Last()
	if !ok || last.Source == SourceUser {
		s.stats.RuleHits++
		observability.RecordSelection(s.Name(), "rule")
		return roster.First().Name, true
	}

	if idx := roster.Index(RoleName(last.Source)); idx >= 0 {
		if idx == roster.Count()-1 {
			s.stats.Completions++
			observability.RecordSelection(s.Name(), "none")
			return "", false
		}
		s.stats.RuleHits++
		observability.RecordSelection(s.Name(), "rule")
		return roster.roles[idx+1].Name, true
	}

	candidates := s.candidates(h, roster)
	switch len(candidates) {
	case 0:
		observability.RecordSelection(s.Name(), "none")
		return "", false
	case 1:
		s.stats.RuleHits++
		observability.RecordSelection(s.Name(), "rule")
		return candidates[0], true
	}

	return s.pick(ctx, h, roster, candidates), true
}

func (s *ContentDriven) pick(ctx context.Context, h *History, roster *Roster, candidates []RoleName) RoleName {
	logger := tracing.LoggerFromContext(ctx, s.logger)
	key := pickKey(h.messages, candidates)

	if name, ok := s.cache.Get(key); ok {
		s.stats.CacheHits++
		observability.RecordSelection(s.Name(), "cache")
		return name
	}

	fallback := candidates[0]
	if s.picker == nil {
		s.stats.Fallbacks++
		observability.RecordSelection(s.Name(), "fallback")
		return fallback
	}

	name, err := s.picker.Pick(ctx, h.Messages(), roster.List(), candidates)
	if err != nil {
		logger.Warn().Err(err).Str("fallback", string(fallback)).Msg("Speaker picker failed, using first candidate")
		s.stats.Fallbacks++
		observability.RecordSelection(s.Name(), "fallback")
		return fallback
	}
	if !containsRole(candidates, name) {
		logger.Warn().Str("answer", string(name)).Str("fallback", string(fallback)).Msg("Speaker picker chose an ineligible role")
		s.stats.Fallbacks++
		observability.RecordSelection(s.Name(), "fallback")
		return fallback
	}

	s.cache.Add(key, name)
	s.stats.ModelPicks++
	observability.RecordSelection(s.Name(), "model")
	return name
}

func (s *ContentDriven) State() (json.RawMessage, error) {
	return json.Marshal(s.stats)
}

func (s *ContentDriven) Restore(state json.RawMessage) error {
	if len(state) == 0 {
		s.stats = contentDrivenState{}
		return nil
	}
	var st contentDrivenState
	if err := json.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("restore %s selector: %w", s.Name(), err)
	}
	s.stats = st
	s.cache.Purge()
	return nil
}

// DefaultCandidates allows every role except the last speaker, and none
// at all once the closing role has spoken.
func DefaultCandidates(h *History, roster *Roster) []RoleName {
	for _, msg := range h.messages {
		if msg.Source == string(roster.Last().Name) {
			return nil
		}
	}

	last, _ := h.Last()
	var out []RoleName
	for _, role := range roster.roles {
		if string(role.Name) != last.Source {
			out = append(out, role.Name)
		}
	}
	return out
}

// pickKey digests the history and candidate set so identical questions get
// identical answers.
func pickKey(messages []Message, candidates []RoleName) string {
	hash := sha256.New()
	for _, msg := range messages {
		hash.Write([]byte(msg.Source))
		hash.Write([]byte{0})
		hash.Write([]byte(strconv.Itoa(len(msg.Content))))
		hash.Write([]byte{0})
		hash.Write([]byte(msg.Content))
	}
	hash.Write([]byte{1})
	for _, c := range candidates {
		hash.Write([]byte(c))
		hash.Write([]byte{0})
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func containsRole(names []RoleName, name RoleName) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
