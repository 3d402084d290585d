// Command aggregator is a minimal OTLP/HTTP ingest adapter (§4.L): it
// accepts protobuf-encoded ExportLogsServiceRequest/ExportTraceServiceRequest
// payloads, converts them with internal/ingest, and logs the flattened
// result. It has no storage backend of its own in scope - the converter
// core is what the spec names, not a query/storage layer behind it.
package main

import (
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"

	collectorlogsv1 "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	collectortracev1 "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"rask-log-pipeline/internal/ingest"
)

func main() {
	addr := os.Getenv("RASK_AGGREGATOR_ADDR")
	if addr == "" {
		addr = ":4318"
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", logsHandler(logger))
	mux.HandleFunc("/v1/traces", tracesHandler(logger))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	logger.WithField("addr", addr).Info("aggregator: listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Fatal("aggregator: server error")
	}
}

func logsHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req collectorlogsv1.ExportLogsServiceRequest
		if err := proto.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid ExportLogsServiceRequest", http.StatusBadRequest)
			return
		}

		logs := ingest.ConvertLogRecords(&req)
		logger.WithField("count", len(logs)).Info("aggregator: ingested logs")

		writeExportResponse(w)
	}
}

func tracesHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req collectortracev1.ExportTraceServiceRequest
		if err := proto.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid ExportTraceServiceRequest", http.StatusBadRequest)
			return
		}

		spans := ingest.ConvertSpans(&req)
		logger.WithField("count", len(spans)).Info("aggregator: ingested spans")

		writeExportResponse(w)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 64<<20))
}

// writeExportResponse replies with an empty OTLP export response body - a
// zero-length protobuf message is a valid (all-fields-default) response for
// both ExportLogsServiceResponse and ExportTraceServiceResponse.
func writeExportResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
}
