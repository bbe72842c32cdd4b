package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"chat-cache/internal/llm"
	"chat-cache/internal/storage"
)

// DatasetStats summarizes a cache log read back for dataset building.
type DatasetStats struct {
	TotalRecords  int                          `json:"total_records"`
	Conversations int                          `json:"conversations"`
	Malformed     int                          `json:"malformed"`
	Roles         map[llm.Role]int             `json:"roles"`
	PerID         map[string]ConversationStats `json:"per_id"`
}

// ConversationStats describes every record logged under one id. Messages and
// roles come from the last snapshot, which supersedes the earlier ones.
type ConversationStats struct {
	ID       string           `json:"id"`
	Records  int              `json:"records"`
	Messages int              `json:"messages"`
	Roles    map[llm.Role]int `json:"roles"`
}

// Summarize walks records in log order. Snapshots that do not decode are
// counted as malformed and otherwise ignored.
func Summarize(records []storage.Record) *DatasetStats {
	stats := &DatasetStats{
		Roles: make(map[llm.Role]int),
		PerID: make(map[string]ConversationStats),
	}

	for _, rec := range records {
		stats.TotalRecords++
		msgs, err := rec.Decode()
		if err != nil {
			stats.Malformed++
			continue
		}

		cs, exists := stats.PerID[rec.ID]
		if !exists {
			cs = ConversationStats{ID: rec.ID}
		}
		cs.Records++
		cs.Messages = len(msgs)
		cs.Roles = make(map[llm.Role]int)
		for _, m := range msgs {
			cs.Roles[m.Role]++
		}
		stats.PerID[rec.ID] = cs
	}

	for _, cs := range stats.PerID {
		for role, n := range cs.Roles {
			stats.Roles[role] += n
		}
	}
	stats.Conversations = len(stats.PerID)
	return stats
}

// IDs returns the conversation ids in ascending order.
func (ds *DatasetStats) IDs() []string {
	ids := make([]string, 0, len(ds.PerID))
	for id := range ds.PerID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Report renders a plain text summary.
func (ds *DatasetStats) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cache records: %d\n", ds.TotalRecords)
	fmt.Fprintf(&b, "Conversations: %d\n", ds.Conversations)
	if ds.Malformed > 0 {
		fmt.Fprintf(&b, "Malformed snapshots: %d\n", ds.Malformed)
	}

	if len(ds.Roles) > 0 {
		b.WriteString("\nMessages by role (latest snapshots):\n")
		for _, role := range []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
			if n := ds.Roles[role]; n > 0 {
				fmt.Fprintf(&b, "- %s: %d\n", role, n)
			}
		}
	}

	if len(ds.PerID) > 0 {
		b.WriteString("\nConversations:\n")
		for _, id := range ds.IDs() {
			cs := ds.PerID[id]
			fmt.Fprintf(&b, "- %s: %d records, %d messages\n", id, cs.Records, cs.Messages)
		}
	}
	return b.String()
}

func (ds *DatasetStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
