package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildcloner/core"
	"guildcloner/models"
)

type testClient struct {
	*RateLimitedClient
	delays []time.Duration
	errors []error
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*testClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	tc := &testClient{}
	client, err := NewRateLimitedClient(ClientParams{
		BaseURL:       server.URL,
		CDNBaseURL:    server.URL,
		Credential:    "test-token",
		HTTPClient:    server.Client(),
		MaxRetries:    3,
		MinRetryDelay: 500 * time.Millisecond,
		MaxRetryDelay: 15 * time.Second,
		OnError:       func(err error) { tc.errors = append(tc.errors, err) },
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	client.sleep = func(_ context.Context, d time.Duration) error {
		tc.delays = append(tc.delays, d)
		return nil
	}
	tc.RateLimitedClient = client
	return tc, server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestNewRateLimitedClient_Validation(t *testing.T) {
	_, err := NewRateLimitedClient(ClientParams{BaseURL: "https://discord.test/api", Credential: "  "})
	assert.ErrorIs(t, err, core.ErrEmptyCredential)

	_, err = NewRateLimitedClient(ClientParams{BaseURL: "http://discord.test/api", Credential: "token"})
	assert.Error(t, err)

	_, err = NewRateLimitedClient(ClientParams{BaseURL: "https://discord.test/api", Credential: "token", MaxRetries: -1})
	assert.Error(t, err)
}

func TestRateLimitedClient_GetGuild_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/guilds/111", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"id": "111", "name": "Source", "icon": "abc"})
	})

	guild, err := client.GetGuild(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, &models.GuildDescriptor{ID: "111", Name: "Source", Icon: "abc"}, guild)
	assert.Empty(t, client.errors)
}

func TestRateLimitedClient_RetriesOn429(t *testing.T) {
	tests := []struct {
		name      string
		respond   func(w http.ResponseWriter)
		wantDelay time.Duration
	}{
		{
			name: "body retry_after below the floor is clamped up",
			respond: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down", "retry_after": 0.1})
			},
			wantDelay: 500 * time.Millisecond,
		},
		{
			name: "body retry_after above the ceiling is clamped down",
			respond: func(w http.ResponseWriter) {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down", "retry_after": 60})
			},
			wantDelay: 15 * time.Second,
		},
		{
			name: "reset-after header is used when body has no delay",
			respond: func(w http.ResponseWriter) {
				w.Header().Set("X-RateLimit-Reset-After", "2.5")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantDelay: 2500 * time.Millisecond,
		},
		{
			name: "retry-after header fallback",
			respond: func(w http.ResponseWriter) {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantDelay: 3 * time.Second,
		},
		{
			name: "default delay without any hint",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantDelay: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					tt.respond(w)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"id": "1", "name": "ok"})
			})

			_, err := client.GetGuild(context.Background(), "1")
			require.NoError(t, err)
			assert.Equal(t, int32(2), calls.Load())
			assert.Equal(t, []time.Duration{tt.wantDelay}, client.delays)
			assert.Empty(t, client.errors)
		})
	}
}

func TestRateLimitedClient_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"message": "slow down", "retry_after": 4.2})
	})

	_, err := client.CreateRole(context.Background(), "1", models.RoleSpec{Name: "mods"})
	require.Error(t, err)

	rlErr, ok := core.IsRateLimitExhausted(err)
	require.True(t, ok)
	assert.Equal(t, 4, rlErr.Attempts)
	assert.Equal(t, 4200*time.Millisecond, rlErr.LastDelay)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, int32(4), calls.Load())
	assert.Len(t, client.delays, 3)
	assert.Len(t, client.errors, 1)
}

func TestRateLimitedClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 is an auth error",
			status: http.StatusUnauthorized,
			body:   map[string]any{"message": "401: Unauthorized", "code": 0},
			check: func(t *testing.T, err error) {
				authErr, ok := core.IsAuthError(err)
				require.True(t, ok)
				assert.Equal(t, "401: Unauthorized", authErr.Message)
				assert.True(t, core.IsFatal(err))
			},
		},
		{
			name:   "403 is a permission error",
			status: http.StatusForbidden,
			body:   map[string]any{"message": "Missing Permissions", "code": 50013},
			check: func(t *testing.T, err error) {
				permErr, ok := core.IsPermissionError(err)
				require.True(t, ok)
				assert.Equal(t, "Missing Permissions", permErr.Message)
				assert.False(t, core.IsFatal(err))
			},
		},
		{
			name:   "404 is an api error",
			status: http.StatusNotFound,
			body:   map[string]any{"message": "Unknown Guild", "code": 10004},
			check: func(t *testing.T, err error) {
				apiErr, ok := core.IsAPIError(err)
				require.True(t, ok)
				assert.Equal(t, 404, apiErr.StatusCode)
				assert.Equal(t, 10004, apiErr.Code)
				assert.True(t, core.IsNotFoundError(err))
			},
		},
		{
			name:   "500 is an api error without retry",
			status: http.StatusInternalServerError,
			body:   "oops",
			check: func(t *testing.T, err error) {
				apiErr, ok := core.IsAPIError(err)
				require.True(t, ok)
				assert.Equal(t, 500, apiErr.StatusCode)
				assert.Equal(t, core.KindAPI, core.ErrorKind(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.GetGuild(context.Background(), "1")
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(1), calls.Load())
			assert.Empty(t, client.delays)
			assert.Len(t, client.errors, 1)
		})
	}
}

func TestRateLimitedClient_NetworkErrorExhausted(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.GetCurrentUser(context.Background())
	require.Error(t, err)

	netErr, ok := core.IsNetworkError(err)
	require.True(t, ok)
	assert.Equal(t, 4, netErr.Attempts)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, client.delays)
	assert.Len(t, client.errors, 1)
}

func TestRateLimitedClient_ListChannels(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/guilds/1/channels", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "v1", "type": 2, "name": "voice", "position": 3, "parent_id": "c1", "bitrate": 64000, "user_limit": 5},
			{"id": "c1", "type": 4, "name": "General", "position": 0},
			{"id": "t1", "type": 0, "name": "chat", "position": 1, "parent_id": "c1", "topic": "hi", "nsfw": true,
				"permission_overwrites": []map[string]any{
					{"id": "r1", "type": 0, "allow": "1024", "deny": "2048"},
					{"id": "u1", "type": 1, "allow": "0", "deny": "1024"},
				}},
			{"id": "n1", "type": 5, "name": "news", "position": 2},
			{"id": "th", "type": 11, "name": "thread", "position": 4},
		})
	})

	listing, err := client.ListChannels(context.Background(), "1")
	require.NoError(t, err)

	require.Len(t, listing.Categories, 1)
	assert.Equal(t, "c1", listing.Categories[0].SourceID)

	require.Len(t, listing.TextChannels, 2)
	assert.Equal(t, "t1", listing.TextChannels[0].SourceID)
	assert.Equal(t, "c1", listing.TextChannels[0].ParentCategorySourceID)
	assert.Equal(t, "hi", listing.TextChannels[0].Topic)
	assert.True(t, listing.TextChannels[0].NSFW)
	assert.Equal(t, []models.OverwriteSpec{
		{TargetSourceID: "r1", TargetKind: models.OverwriteTargetRole, Allow: 1024, Deny: 2048},
		{TargetSourceID: "u1", TargetKind: models.OverwriteTargetMember, Allow: 0, Deny: 1024},
	}, listing.TextChannels[0].PermissionOverwrites)
	assert.Equal(t, "n1", listing.TextChannels[1].SourceID)

	require.Len(t, listing.VoiceChannels, 1)
	assert.Equal(t, models.ChannelKindVoice, listing.VoiceChannels[0].Kind)
	assert.Equal(t, 64000, listing.VoiceChannels[0].Bitrate)
	assert.Equal(t, 5, listing.VoiceChannels[0].UserLimit)
}

func TestRateLimitedClient_CreateVoiceChannelCapsBitrate(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2), body["type"])
		assert.Equal(t, float64(96000), body["bitrate"])
		assert.Equal(t, "cat-9", body["parent_id"])
		writeJSON(w, http.StatusCreated, map[string]any{"id": "new-voice"})
	})

	id, err := client.CreateChannel(context.Background(), "1", models.ChannelSpec{
		Kind:    models.ChannelKindVoice,
		Name:    "loud",
		Bitrate: 384000,
	}, "cat-9")
	require.NoError(t, err)
	assert.Equal(t, "new-voice", id)
}

func TestRateLimitedClient_Messages(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/channels/9/messages", r.URL.Path)
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			assert.Equal(t, "m5", r.URL.Query().Get("before"))
			writeJSON(w, http.StatusOK, []map[string]any{
				{"id": "m4", "content": "hello", "timestamp": "2024-01-02T03:04:05Z",
					"author": map[string]any{"id": "u1", "username": "alice", "global_name": "Alice"}},
				{"id": "m3", "content": "yo", "timestamp": "2024-01-02T03:00:00Z",
					"author": map[string]any{"id": "u2", "username": "bob"}, "member": map[string]any{"nick": "Bobby"}},
			})
		case http.MethodPost:
			raw, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, "**Alice**: hello", body["content"])
			assert.Equal(t, map[string]any{"parse": []any{}, "replied_user": false}, body["allowed_mentions"])
			writeJSON(w, http.StatusOK, map[string]any{"id": "posted"})
		}
	})

	records, err := client.ListMessages(context.Background(), "9", "m5", 50)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Alice", records[0].AuthorDisplayName)
	assert.Equal(t, "Bobby", records[1].AuthorDisplayName)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), records[0].CreatedAt.UTC())

	id, err := client.SendMessage(context.Background(), "9", "**Alice**: hello")
	require.NoError(t, err)
	assert.Equal(t, "posted", id)
}

func TestRateLimitedClient_FetchGuildIcon(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/icons/1/abc.png", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})

	data, contentType, err := client.FetchGuildIcon(context.Background(), "1", "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, "image/png", contentType)
}

func TestRateLimitedClient_SetChannelPermission(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/channels/c/permissions/r", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(0), body["type"])
		assert.Equal(t, "8", body["allow"])
		assert.Equal(t, "16", body["deny"])
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.SetChannelPermission(context.Background(), "c", "r", models.OverwriteSpec{
		TargetKind: models.OverwriteTargetRole,
		Allow:      8,
		Deny:       16,
	})
	require.NoError(t, err)
}
