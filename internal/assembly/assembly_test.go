package assembly_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/kazenokoe/otoforge/internal/align"
	alignmock "github.com/kazenokoe/otoforge/internal/align/mock"
	"github.com/kazenokoe/otoforge/internal/assembly"
	"github.com/kazenokoe/otoforge/internal/lockmap"
	"github.com/kazenokoe/otoforge/internal/slicer"
	"github.com/kazenokoe/otoforge/internal/storage"
	"github.com/kazenokoe/otoforge/internal/suggest"
	"github.com/kazenokoe/otoforge/internal/voicebank"
	"github.com/kazenokoe/otoforge/pkg/audio"
)

// takeWAV builds an encoded non-silent recording of the given duration.
func takeWAV(t *testing.T, durationMS float64) []byte {
	t.Helper()
	n := int(durationMS / 1000 * 44100)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.4 * float64(i%50) / 50
	}
	return audio.EncodeWAV(audio.Clip{Samples: samples, SampleRate: 44100})
}

func newTestBanks(t *testing.T) *voicebank.Store {
	t.Helper()
	locks, err := lockmap.New(64)
	if err != nil {
		t.Fatal(err)
	}
	return voicebank.NewStore(storage.NewMemStore(), locks)
}

func newTestPipeline(t *testing.T, aligner align.Aligner, banks *voicebank.Store) *assembly.Pipeline {
	t.Helper()
	return assembly.New(assembly.Config{
		Aligner: aligner,
		Slicer:  slicer.NewEngine(suggest.NewEngine()),
		Banks:   banks,
	})
}

func cvAlignment(durationMS float64) align.Alignment {
	return align.Alignment{
		Segments: []align.PhonemeSegment{
			{Phoneme: "k", StartMS: 100, EndMS: 150, Confidence: 0.9},
			{Phoneme: "a", StartMS: 150, EndMS: 400, Confidence: 0.85},
		},
		DurationMS: durationMS,
		Method:     "scripted",
	}
}

func TestRunProcessesBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	banks := newTestBanks(t)
	aligner := &alignmock.Aligner{
		Results: map[string]align.Alignment{
			"ka": cvAlignment(500),
			"ki": cvAlignment(500),
		},
	}
	p := newTestPipeline(t, aligner, banks)

	result, err := p.Run(ctx, assembly.BatchRequest{
		BankID:   "lily",
		Style:    voicebank.StyleCV,
		Language: "ja",
		Takes: []assembly.TakeInput{
			{ID: "t1", WAV: takeWAV(t, 500), Transcript: "ka"},
			{ID: "t2", WAV: takeWAV(t, 500), Transcript: "ki"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Processed != 2 || result.Skipped != 0 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 2 processed", result)
	}
	if result.SlicesWritten != 2 {
		t.Fatalf("SlicesWritten = %d, want 2", result.SlicesWritten)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("Failures = %v, want none", result.Failures)
	}

	// Both the sample audio and the oto entry must be persisted.
	for _, alias := range []string{"ka", "ki"} {
		found, err := banks.SampleExists(ctx, "lily", alias+".wav")
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Errorf("sample %s.wav not persisted", alias)
		}
		if _, err := banks.GetEntry(ctx, "lily", alias+".wav", alias); err != nil {
			t.Errorf("entry for %s: %v", alias, err)
		}
	}

	// The aligner saw both takes with the batch language.
	if len(aligner.Calls) != 2 {
		t.Fatalf("aligner calls = %d, want 2", len(aligner.Calls))
	}
	for _, call := range aligner.Calls {
		if call.Language != "ja" {
			t.Errorf("aligner language = %q, want ja", call.Language)
		}
	}
}

func TestRunClassifiesOutcomes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	banks := newTestBanks(t)
	aligner := &alignmock.Aligner{
		Results: map[string]align.Alignment{"ka": cvAlignment(500)},
	}
	p := newTestPipeline(t, aligner, banks)

	result, err := p.Run(ctx, assembly.BatchRequest{
		BankID: "lily",
		Style:  voicebank.StyleCV,
		Takes: []assembly.TakeInput{
			{ID: "good", WAV: takeWAV(t, 500), Transcript: "ka"},
			{ID: "tiny", WAV: takeWAV(t, 30), Transcript: "ki"},
			{ID: "garbage", WAV: []byte("not a wav"), Transcript: "ku"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Processed != 1 || result.Skipped != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 1/1/1", result)
	}

	stages := map[string]string{}
	for _, f := range result.Failures {
		stages[f.TakeID] = f.Stage
	}
	if stages["tiny"] != "slice" {
		t.Errorf("tiny take stage = %q, want slice", stages["tiny"])
	}
	if stages["garbage"] != "decode" {
		t.Errorf("garbage take stage = %q, want decode", stages["garbage"])
	}
}

func TestRunAlignerErrorFailsTake(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	banks := newTestBanks(t)
	aligner := &alignmock.Aligner{Err: errors.New("alignment service unreachable")}
	p := newTestPipeline(t, aligner, banks)

	result, err := p.Run(ctx, assembly.BatchRequest{
		BankID: "lily",
		Style:  voicebank.StyleCV,
		Takes:  []assembly.TakeInput{{ID: "t1", WAV: takeWAV(t, 500), Transcript: "ka"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}
	if result.Failures[0].Stage != "align" {
		t.Fatalf("stage = %q, want align", result.Failures[0].Stage)
	}
}

func TestRunWithoutAlignerUsesDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	banks := newTestBanks(t)
	p := newTestPipeline(t, nil, banks)

	result, err := p.Run(ctx, assembly.BatchRequest{
		BankID: "lily",
		Style:  voicebank.StyleCV,
		Takes:  []assembly.TakeInput{{ID: "t1", WAV: takeWAV(t, 500), Transcript: "ka"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("result = %+v, want 1 processed", result)
	}

	// No alignment means whole-take slicing and default parameters.
	entry, err := banks.GetEntry(ctx, "lily", "ka.wav", "ka")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Params.Preutterance != suggest.DefaultPreutteranceMS {
		t.Fatalf("Preutterance = %g, want default %g",
			entry.Params.Preutterance, suggest.DefaultPreutteranceMS)
	}
}

func TestRunVCVWritesMultipleSlices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	banks := newTestBanks(t)
	aligner := &alignmock.Aligner{
		Results: map[string]align.Alignment{
			"a ki": {
				Segments: []align.PhonemeSegment{
					{Phoneme: "a", StartMS: 100, EndMS: 300, Confidence: 0.9},
					{Phoneme: "k", StartMS: 300, EndMS: 350, Confidence: 0.9},
					{Phoneme: "i", StartMS: 350, EndMS: 600, Confidence: 0.9},
					{Phoneme: "s", StartMS: 600, EndMS: 660, Confidence: 0.9},
					{Phoneme: "u", StartMS: 660, EndMS: 900, Confidence: 0.9},
				},
				DurationMS: 1200,
				Method:     "scripted",
			},
		},
	}
	p := newTestPipeline(t, aligner, banks)

	result, err := p.Run(ctx, assembly.BatchRequest{
		BankID: "lily",
		Style:  voicebank.StyleVCV,
		Takes:  []assembly.TakeInput{{ID: "t1", WAV: takeWAV(t, 1200), Transcript: "a ki"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Processed != 1 || result.SlicesWritten != 2 {
		t.Fatalf("result = %+v, want 1 processed with 2 slices", result)
	}

	entries, err := banks.Entries(ctx, "lily")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestRunGeneratesTakeIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	banks := newTestBanks(t)
	p := newTestPipeline(t, nil, banks)

	result, err := p.Run(ctx, assembly.BatchRequest{
		BankID: "lily",
		Style:  voicebank.StyleCV,
		Takes:  []assembly.TakeInput{{WAV: []byte("broken"), Transcript: "ka"}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].TakeID == "" {
		t.Fatalf("Failures = %+v, want one failure with a generated ID", result.Failures)
	}
}

// staleExistsStore reports every key absent, standing in for the window
// where a parallel take claims a filename after another take's existence
// check already passed.
type staleExistsStore struct {
	*storage.MemStore
}

func (s staleExistsStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}

func TestRunRenamesPastSampleCollisions(t *testing.T) {
	t.Parallel()

	patternWAV := func(period int) []byte {
		n := 500 * 44100 / 1000
		samples := make([]float64, n)
		for i := range samples {
			samples[i] = 0.4 * float64(i%period) / float64(period)
		}
		return audio.EncodeWAV(audio.Clip{Samples: samples, SampleRate: 44100})
	}

	ctx := context.Background()
	mem := storage.NewMemStore()
	locks, err := lockmap.New(64)
	if err != nil {
		t.Fatal(err)
	}
	banks := voicebank.NewStore(staleExistsStore{mem}, locks)
	aligner := &alignmock.Aligner{
		Results: map[string]align.Alignment{"ka": cvAlignment(500)},
	}
	p := assembly.New(assembly.Config{
		Aligner:            aligner,
		Slicer:             slicer.NewEngine(suggest.NewEngine()),
		Banks:              banks,
		MaxConcurrentTakes: 1,
	})

	// Both takes slice to the alias "ka"; with the existence check blind,
	// both pick ka.wav and only the exclusive write can keep them apart.
	result, err := p.Run(ctx, assembly.BatchRequest{
		BankID:   "lily",
		Style:    voicebank.StyleCV,
		Language: "ja",
		Takes: []assembly.TakeInput{
			{ID: "t1", WAV: patternWAV(50), Transcript: "ka"},
			{ID: "t2", WAV: patternWAV(70), Transcript: "ka"},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("Processed = %d, want 2 (failures: %+v)", result.Processed, result.Failures)
	}

	first, err := mem.Read(ctx, voicebank.SampleKey("lily", "ka.wav"))
	if err != nil {
		t.Fatalf("read ka.wav: %v", err)
	}
	second, err := mem.Read(ctx, voicebank.SampleKey("lily", "ka_1.wav"))
	if err != nil {
		t.Fatalf("read ka_1.wav: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("colliding take overwrote the first sample's audio")
	}

	entries, err := banks.Entries(ctx, "lily")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	got := map[string]bool{}
	for _, e := range entries {
		got[e.Filename] = true
	}
	if !got["ka.wav"] || !got["ka_1.wav"] {
		t.Fatalf("entry filenames = %v, want ka.wav and ka_1.wav", got)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	t.Parallel()

	banks := newTestBanks(t)
	p := newTestPipeline(t, nil, banks)

	result, err := p.Run(context.Background(), assembly.BatchRequest{
		BankID: "lily",
		Style:  voicebank.StyleCV,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 0 || result.Failed != 0 || result.Skipped != 0 {
		t.Fatalf("result = %+v, want zero counts", result)
	}
}
