package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	totalClients = 50
	totalOrders  = 20
	settleWait   = 5 * time.Second
	productID    = "stress-product"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	base := os.Getenv("TARGET_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"

	// Open listeners, each watching the first listing page
	var (
		pushes  atomic.Int64
		ready   sync.WaitGroup
		readers sync.WaitGroup
	)
	conns := make([]*websocket.Conn, 0, totalClients)
	for i := 0; i < totalClients; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			log.Fatal().Err(err).Str("url", wsURL).Msg("failed to dial")
		}
		conns = append(conns, conn)

		ready.Add(1)
		readers.Add(1)
		go func(conn *websocket.Conn) {
			defer readers.Done()
			initial := true
			for {
				var f frame
				if err := conn.ReadJSON(&f); err != nil {
					if initial {
						ready.Done()
					}
					return
				}
				if f.Event != "orders" {
					continue
				}
				if initial {
					initial = false
					ready.Done()
					continue
				}
				pushes.Add(1)
			}
		}(conn)

		if err := conn.WriteJSON(map[string]any{"event": "get_orders", "data": map[string]any{"page": 1}}); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe")
		}
	}
	ready.Wait()

	// Place orders concurrently
	var (
		successCount atomic.Int32
		failCount    atomic.Int32
		wg           sync.WaitGroup
	)
	start := time.Now()

	for i := 0; i < totalOrders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := placeOrder(base, fmt.Sprintf("stress-user-%d", n)); err != nil {
				log.Error().Err(err).Int("order", n).Msg("place order failed")
				failCount.Add(1)
				return
			}
			successCount.Add(1)
		}(i)
	}
	wg.Wait()
	time.Sleep(settleWait)
	elapsed := time.Since(start)

	for _, c := range conns {
		c.Close()
	}
	readers.Wait()

	success := successCount.Load()
	expected := int64(success) * totalClients
	got := pushes.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Clients:          %d\n", totalClients)
	fmt.Printf("Orders Placed:    %d\n", success)
	fmt.Printf("Orders Failed:    %d\n", failCount.Load())
	fmt.Printf("Pushes Expected:  %d\n", expected)
	fmt.Printf("Pushes Received:  %d\n", got)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if got == expected {
		fmt.Println("PASS: every listener saw every new order")
	} else {
		fmt.Printf("FAIL: expected %d pushes, got %d\n", expected, got)
	}
}

func placeOrder(base, userID string) error {
	body, _ := json.Marshal(map[string]any{
		"email": userID + "@example.com",
		"items": []map[string]any{{"_id": productID, "quantity": 1, "price": 9.99}},
	})
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/orders", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", userID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
