package order

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/storefront-client/internal/model"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRequestTransition_Table(t *testing.T) {
	for _, from := range Statuses {
		from := from
		for _, to := range Statuses {
			to := to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				t.Parallel()
				o := Order{ID: 1, Status: from}

				got, err := RequestTransition(o, to, "because", "admin@example.com", now)

				allowed := from == to
				for _, next := range Table[from] {
					allowed = allowed || next == to
				}
				if !allowed {
					require.ErrorIs(t, err, model.ErrInvalidTransition)
					return
				}
				require.NoError(t, err)
				require.Len(t, got.History, 1)
				assert.Equal(t, to, got.Status)
				assert.Equal(t, from, got.History[0].From)
				assert.Equal(t, to, got.History[0].To)
			})
		}
	}
}

func TestRequestTransition_NoteRequired(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
	}{
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusCancelled},
		{StatusProcessing, StatusCancelled},
		{StatusDelivered, StatusRefunded},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.to)+" from "+string(tt.from), func(t *testing.T) {
			t.Parallel()
			o := Order{Status: tt.from}

			for _, blank := range []string{"", "   \n"} {
				_, err := RequestTransition(o, tt.to, blank, "a", now)
				require.ErrorIs(t, err, model.ErrMissingNote)
			}

			got, err := RequestTransition(o, tt.to, "  customer asked  ", "a", now)
			require.NoError(t, err)
			assert.Equal(t, "customer asked", got.History[0].Note)
		})
	}
}

func TestRequestTransition_SkipAheadRejected(t *testing.T) {
	_, err := RequestTransition(Order{Status: StatusPending}, StatusShipped, "", "admin", now)
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestRequestTransition_AppendsRecord(t *testing.T) {
	earlier := Transition{From: StatusProcessing, To: StatusShipped, At: now.Add(-time.Hour)}
	o := Order{ID: 9, Status: StatusShipped, History: []Transition{earlier}}

	got, err := RequestTransition(o, StatusDelivered, "", "vendor@example.com", now)
	require.NoError(t, err)

	assert.Equal(t, StatusDelivered, got.Status)
	require.Len(t, got.History, 2)
	assert.Equal(t, earlier, got.History[0])
	last := got.History[1]
	assert.Equal(t, StatusShipped, last.From)
	assert.Equal(t, StatusDelivered, last.To)
	assert.Equal(t, "vendor@example.com", last.Actor)
	assert.Equal(t, now, last.At)
	assert.NotEmpty(t, last.ID)

	// The input order is untouched.
	assert.Equal(t, StatusShipped, o.Status)
	assert.Len(t, o.History, 1)
}

func TestRequestTransition_UnknownStatus(t *testing.T) {
	_, err := RequestTransition(Order{Status: StatusPending}, Status("lost"), "", "a", now)
	require.ErrorIs(t, err, model.ErrUnknownStatus)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("  Shipped ")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, st)

	_, err = ParseStatus("teleported")
	require.ErrorIs(t, err, model.ErrUnknownStatus)
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, st := range Statuses {
		want := st == StatusCancelled || st == StatusRefunded
		assert.Equal(t, want, st.IsTerminal(), st)
	}
}

func TestAllowedNext_ReturnsCopy(t *testing.T) {
	next := AllowedNext(StatusPending)
	next[0] = StatusRefunded
	assert.Equal(t, StatusConfirmed, Table[StatusPending][0])
}

func TestSchemaJSON(t *testing.T) {
	data, err := SchemaJSON()
	require.NoError(t, err)

	var got struct {
		Statuses     []string            `json:"statuses"`
		Transitions  map[string][]string `json:"transitions"`
		NoteRequired []string            `json:"note_required"`
		Terminal     []string            `json:"terminal"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Len(t, got.Statuses, 7)
	assert.Equal(t, []string{"confirmed", "cancelled"}, got.Transitions["pending"])
	assert.Empty(t, got.Transitions["refunded"])
	assert.Equal(t, []string{"cancelled", "refunded"}, got.NoteRequired)
	assert.Equal(t, []string{"cancelled", "refunded"}, got.Terminal)
}

func TestOrder_NextNarrowedByServer(t *testing.T) {
	tests := []struct {
		name       string
		serverNext []Status
		want       []Status
	}{
		{name: "no server list", serverNext: nil, want: []Status{StatusConfirmed, StatusCancelled}},
		{name: "server narrows", serverNext: []Status{StatusCancelled}, want: []Status{StatusCancelled}},
		{name: "server cannot widen", serverNext: []Status{StatusShipped, StatusConfirmed}, want: []Status{StatusConfirmed}},
		{name: "server allows nothing", serverNext: []Status{}, want: []Status{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := Order{Status: StatusPending, ServerNext: tt.serverNext}
			assert.Equal(t, tt.want, o.Next())
		})
	}
}

func TestRequestTransition_RespectsServerNext(t *testing.T) {
	o := Order{Status: StatusPending, ServerNext: []Status{StatusCancelled}}

	_, err := RequestTransition(o, StatusConfirmed, "", "vendor", now)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	got, err := RequestTransition(o, StatusCancelled, "out of stock", "vendor", now)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}
