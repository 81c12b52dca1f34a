// Command nfc-debug is a small CLI for poking at a running NFC agent: list
// readers, read and write cards, watch card events, and check agent health.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	nfcagent "github.com/SimplyPrint/nfc-agent-go"
)

func main() {
	hostFlag := flag.String("host", "", "Agent host (default: NFC_AGENT_HOST or 127.0.0.1)")
	portFlag := flag.Int("port", 0, "Agent port (default: NFC_AGENT_PORT or 32145)")
	readerFlag := flag.Int("reader", 0, "Reader index to operate on")
	timeoutFlag := flag.Duration("timeout", nfcagent.DefaultTimeout, "Per-request timeout")
	typeFlag := flag.String("type", "text", "Data type for write: text, json, url, binary")
	jsonFlag := flag.Bool("json", false, "Print raw JSON instead of formatted output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "nfc-debug - NFC agent debug client\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  nfc-debug [flags] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  readers          List connected readers\n")
		fmt.Fprintf(os.Stderr, "  read             Read the card on the selected reader\n")
		fmt.Fprintf(os.Stderr, "  write <data>     Write data to the card\n")
		fmt.Fprintf(os.Stderr, "  erase            Erase the card\n")
		fmt.Fprintf(os.Stderr, "  watch            Stream card events over WebSocket until interrupted\n")
		fmt.Fprintf(os.Stderr, "  poll             Poll for card arrivals/removals over HTTP until interrupted\n")
		fmt.Fprintf(os.Stderr, "  version          Print agent version\n")
		fmt.Fprintf(os.Stderr, "  health           Print agent health\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  NFC_AGENT_HOST    Agent host (default: 127.0.0.1)\n")
		fmt.Fprintf(os.Stderr, "  NFC_AGENT_PORT    Agent port (default: 32145)\n")
	}

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	var opts []nfcagent.Option
	if *hostFlag != "" {
		opts = append(opts, nfcagent.WithHost(*hostFlag))
	}
	if *portFlag > 0 {
		opts = append(opts, nfcagent.WithPort(*portFlag))
	}
	opts = append(opts, nfcagent.WithTimeout(*timeoutFlag))

	client := nfcagent.NewClient(opts...)
	ctx := context.Background()

	switch args[0] {
	case "readers":
		readers, err := client.GetReaders(ctx)
		if err != nil {
			log.Fatalf("list readers: %v", err)
		}
		if *jsonFlag {
			printJSON(readers)
			return
		}
		if len(readers) == 0 {
			fmt.Println("No readers connected")
			return
		}
		for i, r := range readers {
			fmt.Printf("[%d] %s (%s)\n", i, r.Name, r.Type)
		}

	case "read":
		card, err := client.ReadCard(ctx, *readerFlag)
		if err != nil {
			if nfcagent.IsNoCard(err) {
				fmt.Println("No card present")
				os.Exit(1)
			}
			log.Fatalf("read card: %v", err)
		}
		if *jsonFlag {
			printJSON(card)
			return
		}
		printCard(card)

	case "write":
		if len(args) < 2 {
			log.Fatal("write requires a data argument")
		}
		err := client.WriteCard(ctx, *readerFlag, nfcagent.WriteRequest{
			Data:     args[1],
			DataType: *typeFlag,
		})
		if err != nil {
			log.Fatalf("write card: %v", err)
		}
		fmt.Printf("Wrote %s data to reader %d\n", *typeFlag, *readerFlag)

	case "erase":
		if err := client.EraseCard(ctx, *readerFlag); err != nil {
			log.Fatalf("erase card: %v", err)
		}
		fmt.Println("Card erased")

	case "watch":
		watch(opts, *readerFlag)

	case "poll":
		poll(client, *readerFlag)

	case "version":
		v, err := client.GetVersion(ctx)
		if err != nil {
			log.Fatalf("version: %v", err)
		}
		if *jsonFlag {
			printJSON(v)
			return
		}
		fmt.Printf("nfc-agent %s\n", v.Version)
		fmt.Printf("Build time: %s\n", v.BuildTime)
		fmt.Printf("Git commit: %s\n", v.GitCommit)
		fmt.Printf("(nfc-debug %s)\n", nfcagent.Version)

	case "health":
		h, err := client.Health(ctx)
		if err != nil {
			log.Fatalf("health: %v", err)
		}
		if *jsonFlag {
			printJSON(h)
			return
		}
		fmt.Printf("Status: %s\n", h.Status)
		fmt.Printf("Readers: %d\n", h.ReaderCount)
		if h.Uptime > 0 {
			fmt.Printf("Uptime: %s\n", time.Duration(h.Uptime*float64(time.Second)).Round(time.Second))
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
}

// watch subscribes over WebSocket and prints card events until Ctrl-C.
func watch(opts []nfcagent.Option, reader int) {
	sock := nfcagent.NewSocket(opts...)

	sock.OnConnected(func() {
		log.Println("Connected to agent")
	})
	sock.OnDisconnected(func() {
		log.Println("Disconnected from agent")
	})
	sock.OnCardDetected(func(ev nfcagent.CardDetectedEvent) {
		fmt.Printf("[reader %d] card detected: %s (%s)\n", ev.Reader, ev.Card.UID, ev.Card.Type)
		if ev.Card.Data != "" {
			fmt.Printf("  data (%s): %s\n", ev.Card.DataType, ev.Card.Data)
		}
	})
	sock.OnCardRemoved(func(ev nfcagent.CardRemovedEvent) {
		fmt.Printf("[reader %d] card removed\n", ev.Reader)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sock.Connect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := sock.Subscribe(ctx, reader, 0); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	fmt.Println("Watching for card events (Ctrl-C to stop)...")
	waitForSignal()
	sock.Disconnect()
}

// poll runs the HTTP card poller and prints edges until Ctrl-C.
func poll(client *nfcagent.Client, reader int) {
	poller := nfcagent.NewCardPoller(client, reader, 0)
	poller.OnCard(func(card *nfcagent.Card) {
		fmt.Printf("card detected: %s (%s)\n", card.UID, card.Type)
	})
	poller.OnRemoved(func() {
		fmt.Println("card removed")
	})
	poller.OnError(func(err error) {
		log.Printf("poll error: %v", err)
	})

	poller.Start()
	fmt.Println("Polling for cards (Ctrl-C to stop)...")
	waitForSignal()
	poller.Stop()
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

func printCard(card *nfcagent.Card) {
	fmt.Printf("UID:      %s\n", card.UID)
	fmt.Printf("Type:     %s\n", card.Type)
	if card.Protocol != "" {
		fmt.Printf("Protocol: %s (%s)\n", card.Protocol, card.ProtocolISO)
	}
	if card.Size > 0 {
		fmt.Printf("Size:     %d bytes\n", card.Size)
	}
	fmt.Printf("Writable: %v\n", card.Writable)
	if card.URL != "" {
		fmt.Printf("URL:      %s\n", card.URL)
	}
	if card.Data != "" {
		fmt.Printf("Data (%s): %s\n", card.DataType, card.Data)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	fmt.Println(string(out))
}
