// hookline-receiver is a local webhook consumer for development and demos.
// It verifies the signature header and can be told to fail its first N
// requests to exercise the retry path.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/driftmarket/hookline/internal/signature"
)

const sigHeader = "X-Webhook-Signature"

type receiver struct {
	secret     string
	failFirstN int
	reqCount   int
}

func main() {
	rcv := &receiver{secret: os.Getenv("ENDPOINT_SECRET")}
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rcv.failFirstN = n
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", rcv.handleHook)

	addr := os.Getenv("HTTP_PORT")
	if addr == "" {
		addr = ":8081"
	}
	log.Printf("hookline-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (rcv *receiver) handleHook(w http.ResponseWriter, r *http.Request) {
	rcv.reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rcv.secret != "" {
		if !signature.Verify(rcv.secret, b, r.Header.Get(sigHeader)) {
			log.Printf("signature verification failed event=%s id=%s",
				r.Header.Get("X-Webhook-Event"), r.Header.Get("X-Webhook-ID"))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests respond 500.
	if rcv.reqCount <= rcv.failFirstN {
		log.Printf("FAILING (%d/%d) event=%s body=%s",
			rcv.reqCount, rcv.failFirstN, r.Header.Get("X-Webhook-Event"), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("OK event=%s id=%s body=%q",
		r.Header.Get("X-Webhook-Event"), r.Header.Get("X-Webhook-ID"), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
