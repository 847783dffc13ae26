package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f := cfg.Feedback
	if f.NumFeedbackDocs != 10 || f.NumFeedbackTermsTopical != 10 || f.NumFeedbackTermsCausal != 10 {
		t.Errorf("unexpected feedback counts: %+v", f)
	}
	if f.MaxClauseCount != 4096 {
		t.Errorf("MaxClauseCount = %d, want 4096", f.MaxClauseCount)
	}
	// bm25 param1 is 1.2, which is above 0.99, so lambda falls back to 0.8.
	if f.MixingLambda != 0.8 {
		t.Errorf("MixingLambda = %v, want 0.8", f.MixingLambda)
	}
	if f.CausalMatch != CausalMatchLastWrite {
		t.Errorf("CausalMatch = %q", f.CausalMatch)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	body := `
search:
  similarity:
    name: lm-jelinek-mercer
    param1: 0.6
feedback:
  numFeedbackDocs: 20
  queryMix: 0.5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SP_FEEDBACK_NUM_TERMS_CAUSAL", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feedback.NumFeedbackDocs != 20 {
		t.Errorf("NumFeedbackDocs = %d, want 20", cfg.Feedback.NumFeedbackDocs)
	}
	if cfg.Feedback.NumFeedbackTermsCausal != 25 {
		t.Errorf("NumFeedbackTermsCausal = %d, want 25", cfg.Feedback.NumFeedbackTermsCausal)
	}
	if cfg.Feedback.MixingLambda != 0.6 {
		t.Errorf("MixingLambda = %v, want 0.6 (derived from param1)", cfg.Feedback.MixingLambda)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"docs", func(c *Config) { c.Feedback.NumFeedbackDocs = 0 }, "numFeedbackDocs"},
		{"lambda", func(c *Config) { c.Feedback.MixingLambda = 1 }, "mixingLambda"},
		{"qmix", func(c *Config) { c.Feedback.QueryMix = 1.5 }, "queryMix"},
		{"clauses", func(c *Config) { c.Feedback.MaxClauseCount = -1 }, "maxClauseCount"},
		{"causal", func(c *Config) { c.Feedback.CausalMatch = "best" }, "causalMatch"},
		{"shards", func(c *Config) { c.Indexer.NumShards = 0 }, "numShards"},
		{"rate", func(c *Config) { c.Server.RateLimit = -1 }, "rateLimit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.resolveMixingLambda()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestRunName(t *testing.T) {
	f := FeedbackConfig{
		NumFeedbackDocs:         10,
		NumFeedbackTermsTopical: 15,
		NumFeedbackTermsCausal:  20,
		QueryMix:                0.4,
		FieldToSearch:           "content",
	}
	if got, want := f.RunName("BM25(k1=1.2 b=0.75)"), "BM25k1=1.2b=0.75-D10-T15-C20-queryMix-0.4-content"; got != want {
		t.Errorf("RunName() = %q, want %q", got, want)
	}
}
