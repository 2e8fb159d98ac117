package rpcclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer serves canned JSON-RPC results keyed by method name.
func newTestServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      string          `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, "near-harness", req.ID)

		w.Header().Set("Content-Type", "application/json")

		result, ok := results[req.Method]
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"near-harness","error":{"name":"METHOD_NOT_FOUND","code":-32601,"message":"Method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"near-harness","result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func Test_Client_Status(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"status": `{"chain_id":"localnet","sync_info":{"latest_block_hash":"9uZxHZ","latest_block_height":42}}`,
	})

	client := New(srv.URL)
	status, err := client.Status(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "localnet", status.ChainID)
	assert.Equal(t, uint64(42), status.SyncInfo.LatestBlockHeight)
}

func Test_Client_Call_rpcError(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	client := New(srv.URL)
	err := client.Call(t.Context(), "status", []any{}, nil)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "METHOD_NOT_FOUND", rpcErr.Name)
	assert.Equal(t, int64(-32601), rpcErr.Code)
}

func Test_Client_Call_transportError(t *testing.T) {
	t.Parallel()

	// Nothing listens here.
	client := New("http://localhost:1")
	err := client.Call(t.Context(), "status", []any{}, nil)
	require.ErrorContains(t, err, "failed to call status")
}

func Test_Client_Call_httpError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := New(srv.URL)
	err := client.Call(t.Context(), "status", []any{}, nil)
	require.ErrorContains(t, err, "unexpected status")
}

func Test_Client_Call_timeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	client := New(srv.URL, WithCallTimeout(50*time.Millisecond))
	err := client.Call(t.Context(), "status", []any{}, nil)
	require.Error(t, err)
}

func Test_Client_LatestFinalBlockHash(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]string{
		"block": `{"header":{"hash":"4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi"}}`,
	})

	client := New(srv.URL)
	hash, err := client.LatestFinalBlockHash(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi", hash)
}

func Test_Client_ViewAccessKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  string
		want    uint64
		wantErr string
	}{
		{
			name:   "known key",
			result: `{"nonce":17,"block_hash":"9uZxHZ","block_height":10}`,
			want:   17,
		},
		{
			name:    "unknown key",
			result:  `{"error":"access key ed25519:abc does not exist while viewing","logs":[]}`,
			wantErr: "failed to view access key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, map[string]string{"query": tt.result})

			client := New(srv.URL)
			view, err := client.ViewAccessKey(t.Context(), "alice.test.near", "ed25519:abc")
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, view.Nonce)
		})
	}
}

func Test_Client_CallFunction(t *testing.T) {
	t.Parallel()

	// "42" as an array of byte values.
	srv := newTestServer(t, map[string]string{
		"query": `{"result":[52,50],"logs":["counter is now 42"],"block_height":5}`,
	})

	client := New(srv.URL)
	res, err := client.CallFunction(t.Context(), "counter.test.near", "get_count", []byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "42", string(res.Result))
	assert.Equal(t, []string{"counter is now 42"}, res.Logs)
}

func Test_Client_PatchState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  string
		wantErr string
	}{
		{name: "empty object means success", result: `{}`},
		{
			name:    "non-empty result is a failure",
			result:  `{"unexpected":true}`,
			wantErr: "failed to patch state: unexpected result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, map[string]string{"sandbox_patch_state": tt.result})

			client := New(srv.URL)
			err := client.PatchState(t.Context(), []json.RawMessage{json.RawMessage(`{"Account":{}}`)})
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func Test_resultBytes_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var r resultBytes
	require.NoError(t, json.Unmarshal([]byte(`[104,105]`), &r))
	assert.Equal(t, "hi", string(r))

	require.Error(t, json.Unmarshal([]byte(`[300]`), &r))
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &r))
}
