package tagging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverstf/internal/domain/query"
	"serverstf/internal/domain/server"
)

func always(_ *query.Info, _ *query.PlayerList, _ *query.Rules, _ server.Tags) bool {
	return true
}

func never(_ *query.Info, _ *query.PlayerList, _ *query.Rules, _ server.Tags) bool {
	return false
}

func TestNewRejectsDuplicateTags(t *testing.T) {
	_, err := New(
		Rule{Tag: "tf2", Predicate: always},
		Rule{Tag: "tf2", Predicate: never},
	)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "tf2", regErr.Tag)
}

func TestNewRejectsUnresolvedPrerequisites(t *testing.T) {
	_, err := New(
		Rule{Tag: "mode:cp", Requires: []string{"tf2"}, Predicate: always},
	)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
}

func TestNewRejectsCycles(t *testing.T) {
	_, err := New(
		Rule{Tag: "a", Requires: []string{"b"}, Predicate: always},
		Rule{Tag: "b", Requires: []string{"c"}, Predicate: always},
		Rule{Tag: "c", Requires: []string{"a"}, Predicate: always},
	)
	var cycleErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycleErr)
}

func TestNewAcceptsSelfContainedDAG(t *testing.T) {
	_, err := New(
		Rule{Tag: "a", Predicate: always},
		Rule{Tag: "b", Requires: []string{"a"}, Predicate: always},
		Rule{Tag: "c", Requires: []string{"a", "b"}, Predicate: always},
	)
	require.NoError(t, err)
}

func TestEvaluatePrerequisiteOrdering(t *testing.T) {
	// Regardless of registration order, a rule's predicate must see
	// its accepted prerequisites in the applied set.
	var sawPrereq bool
	tagger, err := New(
		Rule{
			Tag:      "dependent",
			Requires: []string{"base"},
			Predicate: func(_ *query.Info, _ *query.PlayerList, _ *query.Rules, applied server.Tags) bool {
				sawPrereq = applied.Has("base")
				return sawPrereq
			},
		},
		Rule{Tag: "base", Predicate: always},
	)
	require.NoError(t, err)

	tags := tagger.Evaluate(&query.Info{}, &query.PlayerList{}, &query.Rules{})
	assert.True(t, sawPrereq)
	assert.True(t, tags.Equal(server.NewTags("base", "dependent")))
}

func TestEvaluatePrerequisiteNotGuaranteed(t *testing.T) {
	// A prerequisite orders evaluation but may itself have been
	// rejected; the dependent predicate still runs.
	var ran bool
	tagger, err := New(
		Rule{Tag: "base", Predicate: never},
		Rule{
			Tag:      "dependent",
			Requires: []string{"base"},
			Predicate: func(_ *query.Info, _ *query.PlayerList, _ *query.Rules, applied server.Tags) bool {
				ran = true
				return applied.Has("base")
			},
		},
	)
	require.NoError(t, err)

	tags := tagger.Evaluate(&query.Info{}, &query.PlayerList{}, &query.Rules{})
	assert.True(t, ran)
	assert.Empty(t, tags)
}

func TestEvaluateChain(t *testing.T) {
	tagger, err := New(
		Rule{
			Tag: "tf2",
			Predicate: func(info *query.Info, _ *query.PlayerList, _ *query.Rules, _ server.Tags) bool {
				return info.AppID == 440
			},
		},
		Rule{
			Tag:      "mode:cp",
			Requires: []string{"tf2"},
			Predicate: func(_ *query.Info, _ *query.PlayerList, rules *query.Rules, applied server.Tags) bool {
				return applied.Has("tf2") && rules.Value("tf_gamemode_cp") == "1"
			},
		},
		Rule{
			Tag:      "mode:koth",
			Requires: []string{"tf2", "mode:cp"},
			Predicate: func(info *query.Info, _ *query.PlayerList, _ *query.Rules, applied server.Tags) bool {
				return applied.ContainsAll(server.NewTags("tf2", "mode:cp")) &&
					len(info.Map) >= 5 && info.Map[:5] == "koth_"
			},
		},
	)
	require.NoError(t, err)

	info := &query.Info{AppID: 440, Map: "koth_viaduct"}
	rules := &query.Rules{Rules: map[string]string{"tf_gamemode_cp": "1"}}

	tags := tagger.Evaluate(info, &query.PlayerList{}, rules)
	assert.True(t, tags.Equal(server.NewTags("tf2", "mode:cp", "mode:koth")), "got %v", tags.List())
}
