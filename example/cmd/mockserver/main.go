// Standalone mock backend for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/corpuswatch serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/corpuswatch/internal/backend"
	"github.com/jpalmerr/corpuswatch/internal/backend/backendtest"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	token := flag.String("token", "", "require this API token")
	flag.Parse()

	fake := backendtest.New()
	fake.Token = *token
	fake.BusyPolls = 5
	fake.AddCorpus(backend.Corpus{ID: 1, Name: "timit", Imported: true})
	fake.AddCorpus(backend.Corpus{ID: 2, Name: "buckeye"})
	for id := 3; id <= 5; id++ {
		fake.AddCorpus(backend.Corpus{ID: id, Name: fmt.Sprintf("buckeye-s%02d", id)})
	}
	fake.SetQueries("word", []backend.QuerySummary{
		{ID: 1, Name: "vowel durations", AnnotationType: "word"},
		{ID: 2, Name: "stop closures", AnnotationType: "word"},
	})

	fmt.Printf("Mock corpus backend starting on %s\n", *addr)
	fmt.Println("Corpora 2-5 are not imported; import them from the dashboard")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if err := http.ListenAndServe(*addr, fake.Handler()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
