package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cryptique-io-codehub/cryptique-sub010/internal/chunker"
	"github.com/cryptique-io-codehub/cryptique-sub010/internal/retrieval"
	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// sourceEntry is one entry of an ingest file. Text comes from facets when
// given, otherwise it is rendered from the raw analytics or transactions.
type sourceEntry struct {
	Type            types.RecordType  `json:"type"`
	SiteID          string            `json:"site_id"`
	Domain          string            `json:"domain"`
	ContractID      string            `json:"contract_id"`
	ContractAddress string            `json:"contract_address"`
	Blockchain      string            `json:"blockchain"`
	Timestamp       time.Time         `json:"timestamp"`
	Timeframe       types.Timeframe   `json:"timeframe"`
	Facets          map[string]string `json:"facets"`

	Analytics    *chunker.WebsiteAnalytics `json:"analytics"`
	Contract     *chunker.ContractInfo     `json:"contract"`
	Transactions []chunker.Transaction     `json:"transactions"`
}

// readSources decodes a JSON array of sources, or one JSON object per line
func readSources(r io.Reader) ([]sourceEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var entries []sourceEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse sources: %w", err)
		}
		return entries, nil
	}

	var entries []sourceEntry
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for dec.More() {
		var entry sourceEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("failed to parse source %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// readSourcesFile reads sources from path, or stdin when path is "-"
func readSourcesFile(path string) ([]sourceEntry, error) {
	if path == "-" {
		return readSources(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return readSources(f)
}

// toSource converts an entry into an orchestrator source. A zero timestamp
// defaults to now.
func (s sourceEntry) toSource(now time.Time) retrieval.Source {
	meta := types.Metadata{
		Type:            s.Type,
		Timestamp:       s.Timestamp,
		Timeframe:       s.Timeframe,
		SiteID:          s.SiteID,
		Domain:          s.Domain,
		ContractID:      s.ContractID,
		ContractAddress: s.ContractAddress,
		Blockchain:      s.Blockchain,
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = now
	}

	var payload chunker.Payload
	switch {
	case len(s.Facets) > 0:
		payload = chunker.Payload(s.Facets)
	case s.Analytics != nil:
		if meta.Domain == "" {
			meta.Domain = s.Analytics.Domain
		}
		payload = chunker.RenderWebsite(*s.Analytics)
	case s.Contract != nil:
		if meta.ContractAddress == "" {
			meta.ContractAddress = s.Contract.Address
		}
		if meta.Blockchain == "" {
			meta.Blockchain = s.Contract.Blockchain
		}
		payload = chunker.RenderContract(*s.Contract, s.Transactions)
	default:
		payload = chunker.Payload{}
	}

	return retrieval.Source{Payload: payload, Metadata: meta}
}
