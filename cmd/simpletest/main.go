package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/podded/dashgate/client"
)

func main() {
	addr := flag.String("addr", "http://localhost:13270", "dashgate server address")
	date := flag.String("date", time.Now().Format("2006-01-02"), "booking date to list")
	flag.Parse()

	// Create the client. Expect the server running on the same host
	gc, version, err := client.NewClient(*addr, 5*time.Second, os.Getenv("DASHGATE_TOKEN"))
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Printf("Connected to dashgate server version %s\n", version)

	start := time.Now()
	suppliers, err := gc.Suppliers("")
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Printf("Suppliers request took: %v, %d suppliers\n", time.Since(start), len(suppliers))

	tries := 3
	for tries > 0 {
		start := time.Now()
		bookings, err := gc.Bookings(*date)
		if err != nil {
			log.Fatalln(err)
		}
		fmt.Printf("Bookings request took: %v\n", time.Since(start))
		for _, b := range bookings {
			fmt.Printf("%3d %-12s %-10s %s\n", b.Sequence, b.BookingCode, b.Status, b.SupplierName)
		}
		tries--
	}

	types, err := gc.RubberTypes()
	if err != nil {
		log.Fatalln(err)
	}
	fmt.Printf("%d rubber types\n", len(types))
}
