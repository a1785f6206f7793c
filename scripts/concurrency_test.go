//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for seat assignment.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <identifier> <secret> [students]
//
// Or use the convenience environment variables:
//
//	LOGIN_ID=demo@abhyasika.in LOGIN_SECRET=... STUDENTS=20 go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Logs in as a tenant, creates a one-seat room and N students.
//  2. Fires N goroutines (one per student) all assigning the same seat simultaneously.
//  3. Prints how many succeeded vs. got a conflict.
//  4. Reads seats and students back to verify exactly one student holds the seat.
//
// Prerequisites:
//   - Server must be running.
//   - The login must resolve to a tenant (ADMIN or demo) session.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type assignResult struct {
	StudentID  string
	StatusCode int
	Err        error
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	identifier := os.Getenv("LOGIN_ID")
	secret := os.Getenv("LOGIN_SECRET")
	students := 20
	if v := os.Getenv("STUDENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			students = n
		}
	}

	// Support positional args: script <identifier> <secret> [students]
	args := os.Args[1:]
	if len(args) >= 2 {
		identifier, secret = args[0], args[1]
	}
	if len(args) >= 3 {
		if n, err := strconv.Atoi(args[2]); err == nil {
			students = n
		}
	}
	if identifier == "" || secret == "" {
		log.Fatal("Usage: LOGIN_ID=<email> LOGIN_SECRET=<password> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <email> <password> [students]")
	}

	c := &client{base: serverAddr, http: &http.Client{Timeout: 10 * time.Second}}

	fmt.Printf("=== Seat Assignment Concurrency Test ===\n")
	fmt.Printf("Server  : %s\n", serverAddr)
	fmt.Printf("Students: %d\n\n", students)

	var login struct {
		Token string `json:"token"`
	}
	if _, err := c.call(http.MethodPost, "/auth/login", map[string]string{"identifier": identifier, "secret": secret}, &login); err != nil {
		log.Fatalf("login: %v", err)
	}
	c.token = login.Token

	roomID := fmt.Sprintf("stress-%d", time.Now().UnixNano())
	if _, err := c.call(http.MethodPost, "/rooms", map[string]any{"id": roomID, "name": "Stress", "capacity": 1}, nil); err != nil {
		log.Fatalf("create room: %v", err)
	}
	seatID := roomID + "-1"

	ids := make([]string, 0, students)
	for i := 0; i < students; i++ {
		var st struct {
			ID string `json:"id"`
		}
		body := map[string]any{"name": fmt.Sprintf("Stress %d", i), "phone": fmt.Sprintf("90000%05d", i)}
		if _, err := c.call(http.MethodPost, "/students", body, &st); err != nil {
			log.Fatalf("create student %d: %v", i, err)
		}
		ids = append(ids, st.ID)
	}

	results := make([]assignResult, len(ids))
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i, id := range ids {
		wg.Add(1)
		go func(idx int, studentID string) {
			defer wg.Done()
			<-start // all goroutines fire at the same time
			code, err := c.call(http.MethodPost, "/seats/"+seatID+"/assign", map[string]string{"studentId": studentID}, nil)
			results[idx] = assignResult{StudentID: studentID, StatusCode: code, Err: err}
		}(i, id)
	}

	close(start)
	wg.Wait()

	var ok, conflicts, failures int
	for _, r := range results {
		switch {
		case r.StatusCode == http.StatusOK:
			ok++
		case r.StatusCode == http.StatusConflict:
			conflicts++
		default:
			failures++
			fmt.Printf("  student %s: status=%d err=%v\n", r.StudentID, r.StatusCode, r.Err)
		}
	}
	fmt.Printf("Assigned : %d\n", ok)
	fmt.Printf("Conflicts: %d\n", conflicts)
	fmt.Printf("Failures : %d\n\n", failures)

	// Verify the seat and student views agree.
	var seats []struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		StudentID string `json:"studentId"`
	}
	if _, err := c.call(http.MethodGet, "/seats", nil, &seats); err != nil {
		log.Fatalf("list seats: %v", err)
	}
	var all []struct {
		ID     string  `json:"id"`
		SeatID *string `json:"seatId"`
	}
	if _, err := c.call(http.MethodGet, "/students", nil, &all); err != nil {
		log.Fatalf("list students: %v", err)
	}

	holder := ""
	for _, s := range seats {
		if s.ID == seatID {
			holder = s.StudentID
			fmt.Printf("Seat %s: status=%s student=%s\n", s.ID, s.Status, s.StudentID)
		}
	}
	seated := 0
	for _, st := range all {
		if st.SeatID != nil && *st.SeatID == seatID {
			seated++
			if st.ID != holder {
				fmt.Printf("FAIL: student %s points at %s but the seat names %s\n", st.ID, seatID, holder)
				os.Exit(1)
			}
		}
	}

	if ok != 1 || seated != 1 {
		fmt.Printf("FAIL: expected exactly one holder, got %d assignments and %d seated students\n", ok, seated)
		os.Exit(1)
	}
	fmt.Println("PASS: exactly one student holds the seat")
}

func (c *client) call(method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
