package studio

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/promptstudio/internal/generator"
	"github.com/maauso/promptstudio/internal/kvstore"
	"github.com/maauso/promptstudio/internal/scriptgen"
)

func intPtr(i int) *int { return &i }

func TestDefaultState(t *testing.T) {
	st := DefaultState()
	assert.Equal(t, generator.ModeTextToVideo, st.Settings.Mode)
	assert.Equal(t, generator.Resolution720p, st.Settings.Resolution)
	assert.Equal(t, generator.AspectLandscape, st.Settings.AspectRatio)
	assert.Len(t, st.Lanes, LaneCount)
	assert.Len(t, st.Buffers, len(generator.Modes))
}

func TestStore_SetModeSwapsBuffers(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemoryStore())

	_, err := s.Dispatch(ctx, SetPrompt{Text: "text prompt"})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, SetMode{Mode: generator.ModeImageToVideo})
	require.NoError(t, err)
	st, err := s.Dispatch(ctx, SetPrompt{Text: "image prompt"})
	require.NoError(t, err)
	assert.Equal(t, "image prompt", st.Current().PromptText)

	st, err = s.Dispatch(ctx, SetMode{Mode: generator.ModeTextToVideo})
	require.NoError(t, err)
	assert.Equal(t, "text prompt", st.Current().PromptText)

	_, err = s.Dispatch(ctx, SetMode{Mode: "NOPE"})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemoryStore())
	_, err := s.Dispatch(ctx, InsertImages{Images: []Image{{URL: "data:a", Name: "a"}}})
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Lanes[0] = "mutated"
	b := snap.Buffers[generator.ModeTextToVideo]
	b.Images[0].Name = "mutated"

	fresh := s.Snapshot()
	assert.Equal(t, "", fresh.Lanes[0])
	assert.Equal(t, "a", fresh.Current().Images[0].Name)
}

func TestInsertImages(t *testing.T) {
	img := func(n string) Image { return Image{URL: "data:" + n, Name: n} }

	tests := []struct {
		name   string
		mode   generator.Mode
		seed   []Image
		action InsertImages
		want   []string
	}{
		{
			name:   "append",
			mode:   generator.ModeConsistency,
			seed:   []Image{img("a")},
			action: InsertImages{Images: []Image{img("b"), img("c")}},
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "slot pads with placeholders",
			mode:   generator.ModeImageToVideo,
			action: InsertImages{Images: []Image{img("x")}, Slot: intPtr(2)},
			want:   []string{"", "", "x"},
		},
		{
			name:   "slot overwrites and fills consecutive slots",
			mode:   generator.ModeImageToVideo,
			seed:   []Image{img("a"), img("b"), img("c")},
			action: InsertImages{Images: []Image{img("x"), img("y"), img("z")}, Slot: intPtr(1)},
			want:   []string{"a", "x", "y", "z"},
		},
		{
			name:   "interpolation sub slot",
			mode:   generator.ModeInterpolation,
			action: InsertImages{Images: []Image{img("end")}, Slot: intPtr(1), Sub: intPtr(1)},
			want:   []string{"", "", "", "end"},
		},
		{
			name:   "sub ignored outside interpolation",
			mode:   generator.ModeImageToVideo,
			action: InsertImages{Images: []Image{img("x")}, Slot: intPtr(1), Sub: intPtr(1)},
			want:   []string{"", "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := NewStore(kvstore.NewMemoryStore())
			_, err := s.Dispatch(ctx, SetMode{Mode: tt.mode})
			require.NoError(t, err)
			if len(tt.seed) > 0 {
				_, err = s.Dispatch(ctx, InsertImages{Images: tt.seed})
				require.NoError(t, err)
			}

			st, err := s.Dispatch(ctx, tt.action)
			require.NoError(t, err)

			var names []string
			for _, im := range st.Current().Images {
				names = append(names, im.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestInsertImages_Invalid(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemoryStore())

	_, err := s.Dispatch(ctx, InsertImages{})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = s.Dispatch(ctx, InsertImages{Images: []Image{{URL: "u"}}, Slot: intPtr(-1)})
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = s.Dispatch(ctx, SetMode{Mode: generator.ModeInterpolation})
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, InsertImages{Images: []Image{{URL: "u"}}, Slot: intPtr(0), Sub: intPtr(2)})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestRemoveAndClearImages(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemoryStore())
	_, err := s.Dispatch(ctx, InsertImages{Images: []Image{{Name: "a"}, {Name: "b"}, {Name: "c"}}})
	require.NoError(t, err)

	st, err := s.Dispatch(ctx, RemoveImage{Index: 1})
	require.NoError(t, err)
	require.Len(t, st.Current().Images, 2)
	assert.Equal(t, "c", st.Current().Images[1].Name)

	_, err = s.Dispatch(ctx, RemoveImage{Index: 5})
	assert.ErrorIs(t, err, ErrInvalidAction)

	st, err = s.Dispatch(ctx, ClearImages{})
	require.NoError(t, err)
	assert.Empty(t, st.Current().Images)
}

func TestSetLanesAndSettings(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemoryStore())

	st, err := s.Dispatch(ctx, SetLanes{Prompts: []string{"one", " ", "three"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", " ", "three", "", ""}, st.Lanes)
	assert.Equal(t, []string{"one", "three"}, st.LanePrompts(3))
	assert.Equal(t, []string{"one"}, st.LanePrompts(1))

	_, err = s.Dispatch(ctx, SetLanes{Prompts: make([]string, 6)})
	assert.ErrorIs(t, err, ErrInvalidAction)

	st, err = s.Dispatch(ctx, SetSettings{Resolution: generator.Resolution1080p, Language: scriptgen.LanguageVN})
	require.NoError(t, err)
	assert.Equal(t, generator.Resolution1080p, st.Settings.Resolution)
	assert.Equal(t, generator.AspectLandscape, st.Settings.AspectRatio)
	assert.Equal(t, scriptgen.LanguageVN, st.Settings.Language)

	_, err = s.Dispatch(ctx, SetSettings{AspectRatio: "4:3"})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestApplyScript(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemoryStore())
	_, err := s.Dispatch(ctx, SetMode{Mode: generator.ModeImageToVideo})
	require.NoError(t, err)

	st, err := s.Dispatch(ctx, ApplyScript{Script: scriptgen.Script{
		Tool:    scriptgen.ToolSeamlessFlow,
		Text:    "[first]\n[second]",
		Prompts: []string{"first", "second"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "[first]\n[second]", st.Scripts.Seamless)
	assert.Equal(t, "first\nsecond", st.Current().PromptText)
	assert.Equal(t, []string{"first", "second"}, st.Prompts())

	st, err = s.Dispatch(ctx, ApplyScript{Script: scriptgen.Script{Tool: scriptgen.ToolDirector, Text: "no scenes"}})
	require.NoError(t, err)
	assert.Equal(t, "no scenes", st.Scripts.Director)
	assert.Equal(t, "first\nsecond", st.Current().PromptText)
}

func TestSplitPrompts(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitPrompts("  a \n\n \t\nb\n"))
	assert.Empty(t, SplitPrompts(" \n "))
}

func TestLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	s := NewStore(kv)

	actions := []Action{
		SetPrompt{Text: "t2v line"},
		SetMode{Mode: generator.ModeInterpolation},
		SetPrompt{Text: "interp line"},
		InsertImages{Images: []Image{{URL: "data:end", Name: "end"}}, Slot: intPtr(0), Sub: intPtr(1)},
		SetLanes{Prompts: []string{"lane one"}},
		SetCredential{Key: " user-key "},
		SetReferenceImage{URL: "data:ref"},
		SetSettings{AspectRatio: generator.AspectPortrait},
		SetSeamlessScript{Text: "a\nb"},
	}
	for _, a := range actions {
		_, err := s.Dispatch(ctx, a)
		require.NoError(t, err)
	}

	loaded, err := Load(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), loaded.Snapshot())
	assert.Equal(t, "user-key", loaded.Snapshot().Credential)
}

func TestLoad_Defaults(t *testing.T) {
	loaded, err := Load(context.Background(), kvstore.NewMemoryStore())
	require.NoError(t, err)
	assert.Equal(t, DefaultState(), loaded.Snapshot())
}

func TestLoad_CorruptEntries(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, string(KeyModePrompts), []byte("{broken")))
	require.NoError(t, kv.Set(ctx, string(KeySettings), []byte(`{"mode":"BOGUS"}`)))
	require.NoError(t, kvstore.SetJSON(ctx, kv, string(KeyLanePrompts), []string{"kept"}))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	loaded, err := Load(ctx, kv, WithLogger(logger))
	require.NoError(t, err)

	st := loaded.Snapshot()
	assert.Equal(t, "", st.Current().PromptText)
	assert.Equal(t, generator.ModeTextToVideo, st.Settings.Mode)
	assert.Equal(t, "kept", st.Lanes[0])
	assert.Contains(t, logs.String(), "mode_prompts")
	assert.Contains(t, logs.String(), "settings")
}

func TestSetCredential_EmptyDeletes(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	s := NewStore(kv)

	_, err := s.Dispatch(ctx, SetCredential{Key: "k"})
	require.NoError(t, err)
	_, err = kv.Get(ctx, string(KeyCredential))
	require.NoError(t, err)

	_, err = s.Dispatch(ctx, SetCredential{Key: "  "})
	require.NoError(t, err)
	_, err = kv.Get(ctx, string(KeyCredential))
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

type failingKV struct {
	kvstore.Store
}

func (failingKV) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func (failingKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestStore_PersistFailureKeepsState(t *testing.T) {
	s := NewStore(failingKV{kvstore.NewMemoryStore()})

	_, err := s.Dispatch(context.Background(), SetPrompt{Text: "lost"})
	require.Error(t, err)
	assert.Equal(t, "", s.Snapshot().Current().PromptText)
}

func TestLoad_BackendFailure(t *testing.T) {
	_, err := Load(context.Background(), failingKV{kvstore.NewMemoryStore()})
	assert.Error(t, err)
}
