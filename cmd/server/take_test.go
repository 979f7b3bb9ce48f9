package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/selve/internal/api"
	"github.com/ashureev/selve/internal/assessment"
	"github.com/ashureev/selve/internal/catalog"
	"github.com/ashureev/selve/internal/client"
	"github.com/ashureev/selve/internal/render"
	"github.com/ashureev/selve/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	choices := json.RawMessage(`{"options":["red",{"value":"blue","label":"Sky blue"},"green"]}`)

	tests := []struct {
		name    string
		view    render.View
		input   string
		want    string
		wantErr bool
	}{
		{"scale", render.View{Kind: render.TypeScaleSlider}, " 4 ", `4`, false},
		{"scale not a number", render.View{Kind: render.TypeScaleSlider}, "four", "", true},
		{"radio by index", render.View{Kind: render.TypeRadioGroup, Config: choices}, "2", `"blue"`, false},
		{"radio by label", render.View{Kind: render.TypeRadioGroup, Config: choices}, "sky blue", `"blue"`, false},
		{"radio out of range", render.View{Kind: render.TypeRadioGroup, Config: choices}, "9", "", true},
		{"checkbox", render.View{Kind: render.TypeCheckboxGroup, Config: choices}, "1, green", `["red","green"]`, false},
		{"rank", render.View{Kind: render.TypeRankOrder, Config: choices}, "3,1,2", `["green","red","blue"]`, false},
		{"yes", render.View{Kind: render.TypeYesNo}, "Y", `true`, false},
		{"no", render.View{Kind: render.TypeYesNo}, "no", `false`, false},
		{"yes-no junk", render.View{Kind: render.TypeYesNo}, "maybe", "", true},
		{"text", render.View{Kind: render.TypeTextInput}, "Ada", `"Ada"`, false},
		{"placeholder", render.View{Kind: render.KindPlaceholder}, "anything", `"anything"`, false},
		{"empty", render.View{Kind: render.TypeTextInput}, "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInput(tt.view, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func newTestTaker(t *testing.T) (*taker, *bytes.Buffer) {
	t.Helper()
	repo := store.NewMemory()
	bank, err := catalog.LoadFile("../../internal/catalog/testdata/bank.yaml")
	require.NoError(t, err)
	require.NoError(t, catalog.Seed(context.Background(), repo, bank))
	svc, err := assessment.NewService(repo, assessment.Options{})
	require.NoError(t, err)

	r := chi.NewRouter()
	api.NewHandler(svc, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	return &taker{
		api:    client.New(srv.URL, client.WithHTTPClient(srv.Client())),
		drafts: client.NewDrafts(),
		out:    &out,
	}, &out
}

func TestTakerSyncDiscardsRejectedDraft(t *testing.T) {
	tk, out := newTestTaker(t)
	ctx := context.Background()
	s, err := tk.api.CreateSession(ctx, nil)
	require.NoError(t, err)

	tk.drafts.Set("q-parties", json.RawMessage(`42`))
	require.NoError(t, tk.sync(ctx, s.ID))
	assert.Contains(t, out.String(), "Rejected")
	assert.Empty(t, tk.drafts.Pending())

	tk.drafts.Set("q-name", json.RawMessage(`"Ada"`))
	require.NoError(t, tk.sync(ctx, s.ID))

	got, err := tk.api.GetSession(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Answers, 1)
	assert.Equal(t, "q-name", got.Answers[0].QuestionID)
	assert.Equal(t, 1, got.CurrentStep)
}
