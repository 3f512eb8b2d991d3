package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/riddle-backend/internal/domain"
	"github.com/riddle-backend/internal/kafka"
)

// readEvents loads one billing event per line, skipping blanks and comments
func readEvents(path string) ([]domain.BillingEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []domain.BillingEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := kafka.DecodeEvent([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "billing-events", "Kafka topic")
	file := flag.String("file", "", "JSON lines file of billing events")
	rate := flag.Int("rate", 0, "Events per second (0 = as fast as possible)")
	dryRun := flag.Bool("dry-run", false, "Validate the file without publishing")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	events, err := readEvents(*file)
	if err != nil {
		log.Fatalf("Failed to read events: %v", err)
	}

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Billing Event Replay")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Events:           %d\n", len(events))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if *dryRun {
		fmt.Println("Dry run: file is valid")
		return
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var tick <-chan time.Time
	if *rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(*rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	sent := 0
publish:
	for i, ev := range events {
		if tick != nil {
			select {
			case <-tick:
			case <-sigChan:
				fmt.Println("\nShutting down...")
				break publish
			}
		}

		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("Failed to marshal event %d: %v", i, err)
			continue
		}

		// keyed by user so a user's events land on one partition in order
		key := ev.UserID
		if key == "" {
			key = ev.Provider + ":" + ev.CustomerID
		}

		select {
		case producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(key),
			Value: sarama.ByteEncoder(data),
		}:
			sent++
		case <-sigChan:
			fmt.Println("\nShutting down...")
			break publish
		}
	}

	producer.AsyncClose()
	wg.Wait()
	fmt.Printf("✓ Completed. Queued: %d, Sent: %d, Errors: %d\n",
		sent, atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
}
