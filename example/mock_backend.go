package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/jpalmerr/corpuswatch/internal/backend"
	"github.com/jpalmerr/corpuswatch/internal/backend/backendtest"
)

// mockCorpora are the corpora the demo backend serves. Corpus 2 starts out
// not imported so the dashboard's import button has something to do.
var mockCorpora = []backend.Corpus{
	{ID: 1, Name: "timit", InputFormat: "T", Imported: true},
	{ID: 2, Name: "buckeye", InputFormat: "B", Imported: false},
	{ID: 3, Name: "librispeech", InputFormat: "M", Imported: true},
}

// StartMockBackend runs an in-memory corpus-management API on addr.
// Every 20-60 seconds one corpus fails a few status reads so the
// dashboard shows it as unreachable before it recovers.
// Call this in a goroutine before creating the watcher.
func StartMockBackend(addr string) {
	fake := backendtest.New()
	fake.BusyPolls = 3
	for _, c := range mockCorpora {
		fake.AddCorpus(c)
	}
	fake.SetQueries("word", []backend.QuerySummary{
		{ID: 1, Name: "vowel durations", AnnotationType: "word"},
	})

	go func() {
		for {
			time.Sleep(time.Duration(20+rand.Intn(41)) * time.Second)
			c := mockCorpora[rand.Intn(len(mockCorpora))]
			id := strconv.Itoa(c.ID)
			fake.FailCorpus(id, 2)
			slog.Info("simulating outage", "corpus_id", id, "failed_reads", 2)
		}
	}()

	if err := http.ListenAndServe(addr, fake.Handler()); err != nil {
		slog.Error("mock backend error", "error", err)
	}
}
