package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/bizdesk/internal/domain"
	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/infrastructure/redis"
)

func TestEventsStreamDeliversOrganizationEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := redis.NewClient(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	publisher := events.NewPublisher(rc, nil, testLogger())

	ts := newTestServer(t, &Handlers{
		Events: NewEventsHandler(publisher, []string{"https://app.example.test"}, testLogger()),
	})
	org := ts.seedOrg(domain.SubscriptionActive)
	other := ts.seedOrg(domain.SubscriptionActive)
	ts.addMember(org, "member-1", domain.RoleMember)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/organizations/" + org.ID + "/events"
	header := http.Header{testUserHeader: {"member-1"}}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{
		testUserHeader: {"member-1"},
		"Origin":       {"https://evil.example.test"},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, domain.Event{Type: "client.created", OrganizationID: other.ID, ResourceID: "c-0"}))
	require.NoError(t, publisher.Publish(ctx, domain.Event{Type: "invoice.sent", OrganizationID: org.ID, ResourceID: "inv-1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var got domain.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, "invoice.sent", got.Type)
	assert.Equal(t, "inv-1", got.ResourceID)

	_, resp, err = websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/organizations/"+other.ID+"/events", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
