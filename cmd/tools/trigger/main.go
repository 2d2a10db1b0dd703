package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Fires a discovery run against a local server. SESSION_TOKEN must hold a
// valid session JWT (signup/login response).
func main() {
	token := strings.TrimSpace(os.Getenv("SESSION_TOKEN"))
	if token == "" {
		fmt.Println("Missing SESSION_TOKEN environment variable")
		os.Exit(1)
	}

	keywords := "HVAC maintenance"
	if len(os.Args) > 1 {
		keywords = strings.Join(os.Args[1:], " ")
	}

	body, _ := json.Marshal(map[string]string{"keywords": keywords})
	req, err := http.NewRequest("POST", "http://localhost:8080/agents/discovery", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("Response Status: %s\n", resp.Status)
	payload, _ := io.ReadAll(resp.Body)
	fmt.Println(string(payload))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
