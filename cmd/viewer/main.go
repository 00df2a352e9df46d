package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"ajar-messaging/domain"
	"ajar-messaging/infrastructure/storage"
	"ajar-messaging/internal"
)

// The viewer dumps persisted conversations straight from the store,
// without going through the gateway. It opens Badger read-only so it can
// run next to a live server.
func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	room := flag.String("room", "", "Only dump this room (default: all rooms)")
	colours := flag.Bool("colours", true, "Colour the room headers")
	flag.Parse()

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening if another process (the server) holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repository := storage.NewMessageRepository(db, slog.Default())

	rooms, err := selectRooms(repository, *room)
	if err != nil {
		log.Fatal(err)
	}
	if len(rooms) == 0 {
		fmt.Println("No conversations found")
		return
	}

	histories, err := repository.Histories(rooms)
	if err != nil {
		log.Fatal(err)
	}

	for _, id := range rooms {
		printRoom(id, histories[id], *colours)
	}
}

func selectRooms(repository storage.MessageRepository, only string) ([]domain.RoomID, error) {
	if only != "" {
		return []domain.RoomID{domain.RoomID(only)}, nil
	}
	rooms, err := repository.Rooms()
	if err != nil {
		return nil, err
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms, nil
}

func printRoom(id domain.RoomID, messages []domain.Message, colours bool) {
	header := fmt.Sprintf("  ====== %s (%d messages) ======", id, len(messages))
	if colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Seq", "At", "Sender", "Body"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, message := range messages {
		table.Append([]string{
			fmt.Sprintf("%d", message.Seq),
			message.At.Format("2006-01-02 15:04:05"),
			message.Sender,
			message.Body,
		})
	}
	table.Render()
	fmt.Println()
}
