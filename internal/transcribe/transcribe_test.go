package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"speech-to-pdf/internal/models"
	"speech-to-pdf/internal/test"
)

func writeAudio(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("fake audio bytes"), 0o644))
	return path
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "", NormalizeLanguage("auto"))
	assert.Equal(t, "", NormalizeLanguage(" AUTO "))
	assert.Equal(t, "", NormalizeLanguage(""))
	assert.Equal(t, "de", NormalizeLanguage("de"))
}

func TestDeepgramTranscribe(t *testing.T) {
	fixture := test.Fixture(t, "transcribe", "deepgram_response.json")

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "fake audio bytes", string(body))
		gotQuery = r.URL.RawQuery
		w.Write(fixture)
	}))
	defer server.Close()

	dg := NewDeepgram("dg-key", server.URL+"/", server.Client())
	tr, err := dg.Transcribe(context.Background(), writeAudio(t, "clip.mp3"), "", "nova-3")
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "detect_language=true")
	assert.Contains(t, gotQuery, "model=nova-3")
	assert.NotContains(t, gotQuery, "language=de")
	assert.Equal(t, 90.0, tr.Duration)
	assert.Equal(t, "de", tr.Language)
	assert.Equal(t, "nova-3", tr.Model)
	require.Len(t, tr.Segments, 2)
	require.NotNil(t, tr.Segments[1].Speaker)
	assert.Equal(t, 1, *tr.Segments[1].Speaker)
	assert.NotEmpty(t, tr.Raw)
}

func TestDeepgramExplicitLanguageAndErrors(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"err_msg":"bad key"}`))
			return
		}
		assert.Equal(t, "en", r.URL.Query().Get("language"))
		assert.Empty(t, r.URL.Query().Get("detect_language"))
		w.Write([]byte(`{"metadata":{"duration":1},"results":{"channels":[{"alternatives":[{"transcript":"hi"}]}]}}`))
	}))
	defer server.Close()

	dg := NewDeepgram("k", server.URL, nil)
	audio := writeAudio(t, "clip.wav")

	tr, err := dg.Transcribe(context.Background(), audio, "en", "nova-3")
	require.NoError(t, err)
	assert.Equal(t, "en", tr.Language)
	assert.Equal(t, "hi", tr.Text)

	status = http.StatusUnauthorized
	_, err = dg.Transcribe(context.Background(), audio, "en", "nova-3")
	assert.ErrorContains(t, err, "deepgram http 401")

	_, err = dg.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), "", "nova-3")
	assert.Error(t, err)
}

func TestOpenAITranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"task":"transcribe","language":"english","duration":42.5,"text":" Hello world ",
			"segments":[{"id":0,"start":0,"end":2.5,"text":" Hello world"}]}`))
	}))
	defer server.Close()

	o := NewOpenAI("sk-test", server.URL+"/v1")
	tr, err := o.Transcribe(context.Background(), writeAudio(t, "clip.m4a"), "", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", tr.Text)
	assert.Equal(t, 42.5, tr.Duration)
	assert.Equal(t, "english", tr.Language)
	assert.Equal(t, "whisper-1", tr.Model)
	require.Len(t, tr.Segments, 1)
	assert.Equal(t, 2.5, tr.Segments[0].End)
}

func TestOpenAITranscribeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit exceeded","type":"rate_limit_error"}}`))
	}))
	defer server.Close()

	_, err := NewOpenAI("sk-test", server.URL+"/v1").Transcribe(context.Background(), writeAudio(t, "clip.mp3"), "en", "whisper-1")
	assert.ErrorContains(t, err, "429")
}

type fakeProvider struct {
	transcript models.Transcript
	err        error
	language   string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Transcribe(ctx context.Context, audioPath, language, model string) (models.Transcript, error) {
	f.language = language
	return f.transcript, f.err
}

func newTestAdapter(t *testing.T, p Provider) (*Adapter, string, string) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	pdfs := filepath.Join(root, "pdfs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.MkdirAll(pdfs, 0o755))
	a := NewAdapter(p, pdfs, zap.NewNop())
	a.writePDF = func(w io.Writer, tr models.Transcript) error {
		_, err := io.WriteString(w, "%PDF-1.7 "+tr.Title)
		return err
	}
	return a, docs, pdfs
}

func TestAdapterWritesEveryArtifact(t *testing.T) {
	p := &fakeProvider{transcript: models.Transcript{
		Text: "hello", Duration: 90, Language: "en", Model: "nova-3",
		Segments: []models.Segment{{Start: 0, End: 1, Text: "hello"}},
	}}
	a, docs, pdfs := newTestAdapter(t, p)

	res, err := a.Transcribe(context.Background(), Request{
		AudioPath: "in.mp3", OutputBase: filepath.Join(docs, "abc"), DisplayName: "Standup", Language: "auto", Model: "nova-3",
	})
	require.NoError(t, err)
	assert.Equal(t, "", p.language, "auto means detection")

	assert.Equal(t, filepath.Join(pdfs, "abc.pdf"), res.PDFPath)
	assert.Equal(t, 90.0, res.Duration)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, "nova-3", res.ModelUsed)
	for _, path := range []string{res.JSONPath, res.TXTPath, res.DOCXPath, res.SRTPath, res.PDFPath} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.NotZero(t, info.Size(), path)
	}
	txt, err := os.ReadFile(res.TXTPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(txt), "Standup\n"))

	cr := res.ConversionResult()
	assert.Equal(t, res.DOCXPath, cr.DocxPath)
	assert.Equal(t, res.SRTPath, cr.SrtPath)
}

func TestAdapterWarnsOnTextOutsidePDFFonts(t *testing.T) {
	p := &fakeProvider{transcript: models.Transcript{Text: "Добрый день", Duration: 3, Language: "ru"}}
	a, docs, _ := newTestAdapter(t, p)
	core, logs := observer.New(zap.WarnLevel)
	a.logger = zap.New(core)

	_, err := a.Transcribe(context.Background(), Request{AudioPath: "in.mp3", OutputBase: filepath.Join(docs, "ru"), DisplayName: "Call"})
	require.NoError(t, err)
	entries := logs.FilterMessage("transcript has characters the pdf fonts cannot show").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "ru", entries[0].ContextMap()["language"])

	p.transcript = models.Transcript{Text: "plain english", Duration: 3, Language: "en"}
	_, err = a.Transcribe(context.Background(), Request{AudioPath: "in.mp3", OutputBase: filepath.Join(docs, "en"), DisplayName: "Call"})
	require.NoError(t, err)
	assert.Len(t, logs.FilterMessage("transcript has characters the pdf fonts cannot show").All(), 1)
}

func TestAdapterProviderErrorWritesNothing(t *testing.T) {
	p := &fakeProvider{err: errors.New("deepgram http 500: upstream")}
	a, docs, _ := newTestAdapter(t, p)

	_, err := a.Transcribe(context.Background(), Request{OutputBase: filepath.Join(docs, "x"), Model: "nova-3"})
	assert.EqualError(t, err, "deepgram http 500: upstream")
	entries, _ := os.ReadDir(docs)
	assert.Empty(t, entries)
}

func TestAdapterRenderErrorCleansUp(t *testing.T) {
	p := &fakeProvider{transcript: models.Transcript{Text: "hello", Duration: 1}}
	a, docs, pdfs := newTestAdapter(t, p)
	a.writePDF = func(io.Writer, models.Transcript) error { return errors.New("font missing") }

	_, err := a.Transcribe(context.Background(), Request{OutputBase: filepath.Join(docs, "x"), Model: "m"})
	assert.ErrorContains(t, err, "font missing")

	for _, dir := range []string{docs, pdfs} {
		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries, dir)
	}
}
