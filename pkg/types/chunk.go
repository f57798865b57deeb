package types

import (
	"fmt"
	"time"
)

// RecordType discriminates website and contract analytics
type RecordType string

const (
	TypeWebsite  RecordType = "website"
	TypeContract RecordType = "contract"
)

// Timeframe is the aggregation window a chunk summarizes
type Timeframe string

const (
	TimeframeRealtime Timeframe = "realtime"
	TimeframeHourly   Timeframe = "hourly"
	TimeframeDaily    Timeframe = "daily"
	TimeframeWeekly   Timeframe = "weekly"
)

// DataCategory labels the analytical facet a chunk was built from
type DataCategory string

const (
	CategoryOverview         DataCategory = "overview"
	CategoryUserBehavior     DataCategory = "user_behavior"
	CategoryWeb3             DataCategory = "web3"
	CategoryPerformance      DataCategory = "performance"
	CategoryUserActivity     DataCategory = "user_activity"
	CategoryTemporalPatterns DataCategory = "temporal_patterns"
)

// categoriesByType lists the categories each record type may carry
var categoriesByType = map[RecordType][]DataCategory{
	TypeWebsite:  {CategoryOverview, CategoryUserBehavior, CategoryWeb3, CategoryPerformance},
	TypeContract: {CategoryOverview, CategoryUserActivity, CategoryTemporalPatterns},
}

// Metadata describes where a chunk came from and what it summarizes.
// Website chunks carry SiteID and Domain; contract chunks carry
// ContractID, ContractAddress and Blockchain.
type Metadata struct {
	Type         RecordType   `json:"type"`
	Timestamp    time.Time    `json:"timestamp"`
	Timeframe    Timeframe    `json:"timeframe"`
	DataCategory DataCategory `json:"data_category"`
	Metrics      []string     `json:"metrics,omitempty"`
	Source       string       `json:"source,omitempty"`

	// Website identity
	SiteID string `json:"site_id,omitempty"`
	Domain string `json:"domain,omitempty"`

	// Contract identity
	ContractID      string `json:"contract_id,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	Blockchain      string `json:"blockchain,omitempty"`
}

// Chunk is one labeled unit of summary text, the atomic item that gets embedded.
// ID and IngestedAt are assigned by the chunker's Combine.
type Chunk struct {
	ID         int64
	Text       string
	Metadata   Metadata
	IngestedAt time.Time
}

// ValidCategory reports whether category is allowed for record type t
func ValidCategory(t RecordType, category DataCategory) bool {
	for _, c := range categoriesByType[t] {
		if c == category {
			return true
		}
	}
	return false
}

// ValidateIdentity checks the fields every chunk of a source shares:
// type, identity, timeframe and timestamp. It does not look at DataCategory.
func (m *Metadata) ValidateIdentity() error {
	switch m.Type {
	case TypeWebsite:
		if m.SiteID == "" {
			return &ValidationError{Field: "site_id", Index: -1, Reason: "required for website records"}
		}
	case TypeContract:
		if m.ContractID == "" {
			return &ValidationError{Field: "contract_id", Index: -1, Reason: "required for contract records"}
		}
	default:
		return &ValidationError{Field: "type", Index: -1, Reason: fmt.Sprintf("unknown record type %q", m.Type)}
	}

	switch m.Timeframe {
	case TimeframeRealtime, TimeframeHourly, TimeframeDaily, TimeframeWeekly:
	default:
		return &ValidationError{Field: "timeframe", Index: -1, Reason: fmt.Sprintf("unknown timeframe %q", m.Timeframe)}
	}

	if m.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Index: -1, Reason: "must be set"}
	}
	return nil
}

// Validate performs full validation, including that the data category
// belongs to the record type
func (m *Metadata) Validate() error {
	if err := m.ValidateIdentity(); err != nil {
		return err
	}
	if !ValidCategory(m.Type, m.DataCategory) {
		return &ValidationError{
			Field:  "data_category",
			Index:  -1,
			Reason: fmt.Sprintf("category %q is not valid for %s records", m.DataCategory, m.Type),
		}
	}
	return nil
}

// Validate checks the chunk text and metadata
func (c *Chunk) Validate() error {
	if c.Text == "" {
		return &ValidationError{Field: "text", Index: -1, Reason: "chunk text cannot be empty"}
	}
	return c.Metadata.Validate()
}
