package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"QueryChain/sdk/go/querychain"
)

func main() {
	baseURL := os.Getenv("QUERYCHAIN_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	client, err := querychain.NewClient(baseURL, nil)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	answer, err := client.Answer(ctx, "convert 100 usd to eur")
	if err != nil {
		panic(err)
	}
	fmt.Printf("answer %s (outcome=%s, pattern=%s)\n", answer.Answer, answer.Outcome, answer.Pattern)

	task, err := client.SubmitTask(ctx, querychain.TaskSubmission{Query: "what is the weather in paris"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted task %s (status=%s)\n", task.ID, task.Status)

	task, err = client.WaitForTask(ctx, task.ID, 200*time.Millisecond)
	if err != nil {
		panic(err)
	}
	if task.Result != nil {
		fmt.Printf("task %s finished: %s\n", task.ID, task.Result.Answer)
	} else {
		fmt.Printf("task %s finished with status %s: %s\n", task.ID, task.Status, task.LastError)
	}

	records, err := client.History(ctx, 5)
	if err != nil {
		panic(err)
	}
	for _, r := range records {
		fmt.Printf("%s  %-30s %s\n", r.QueryID, r.Query, r.Answer)
	}
}
