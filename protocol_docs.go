package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"rpsls/broker/internal/rules"
	"rpsls/broker/internal/wire"
)

// ProtocolDoc describes one message type or error code a match socket can
// carry. The structure is deliberately generic so future clients can attach
// extra metadata without breaking the API.
type ProtocolDoc struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Fields      string `json:"fields,omitempty"`
}

// defaultProtocolDocs is the canonical description of the socket protocol.
// Client developers can query the endpoint instead of reverse-engineering
// frames, and automated tests can keep their fixtures in sync with it.
var defaultProtocolDocs = []ProtocolDoc{
	{
		ID:          wire.TypeHeartbeat,
		Kind:        "inbound",
		Description: "Refresh the sender's liveness timestamp so the presence sweep keeps the slot.",
	},
	{
		ID:          wire.TypeReady,
		Kind:        "inbound",
		Description: "Mark the sender ready for the next round; after a resolved round this opens a fresh one.",
	},
	{
		ID:          wire.TypeMove,
		Kind:        "inbound",
		Description: "Submit the sender's move for the open round.",
		Fields:      "move: " + strings.Join(moveNames(), " | "),
	},
	{
		ID:          wire.TypeState,
		Kind:        "outbound",
		Description: "Per-recipient match snapshot pushed after every committed change.",
		Fields:      "self, opponent, rounds, round_resolved, complete, match_outcome",
	},
	{
		ID:          wire.TypeError,
		Kind:        "outbound",
		Description: "Non-fatal failure report delivered only to the connection that caused it.",
		Fields:      "error, detail",
	},
	{
		ID:          string(wire.CodeInvalidMatchID),
		Kind:        "error",
		Description: "The requested match id is not a 32 character lowercase hex string.",
	},
	{
		ID:          string(wire.CodeNotLoggedIn),
		Kind:        "error",
		Description: "The upgrade request carried no acceptable identity.",
	},
	{
		ID:          string(wire.CodeGameFull),
		Kind:        "error",
		Description: "Both slots are held by other identities.",
	},
	{
		ID:          string(wire.CodeNotInMatch),
		Kind:        "error",
		Description: "The sender holds no slot in this match.",
	},
	{
		ID:          string(wire.CodeNotReady),
		Kind:        "error",
		Description: "A move arrived before the sender readied up.",
	},
	{
		ID:          string(wire.CodeRoundClosed),
		Kind:        "error",
		Description: "The round already has the sender's move or is resolved.",
	},
	{
		ID:          string(wire.CodeInvalidMove),
		Kind:        "error",
		Description: "The submitted symbol is not legal in this match's move set.",
	},
	{
		ID:          string(wire.CodeMalformedMessage),
		Kind:        "error",
		Description: "The frame was not a recognizable protocol message.",
	},
}

func moveNames() []string {
	moves := rules.Moves()
	names := make([]string, 0, len(moves))
	for _, move := range moves {
		names = append(names, string(move))
	}
	return names
}

// registerProtocolDocEndpoints serves the protocol documentation as JSON.
func registerProtocolDocEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("/api/protocol", func(w http.ResponseWriter, r *http.Request) {
		// Work on a copy so concurrent requests cannot mutate the global slice.
		docs := append([]ProtocolDoc(nil), defaultProtocolDocs...)
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].Kind == docs[j].Kind {
				return strings.Compare(docs[i].ID, docs[j].ID) < 0
			}
			return strings.Compare(docs[i].Kind, docs[j].Kind) < 0
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(docs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
