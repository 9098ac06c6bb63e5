// viewsend publishes a single product-view event, for exercising the
// widgets consumer by hand.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"Storefront/internal/events"
	"Storefront/internal/recent"
)

func main() {
	broker := flag.String("broker", "localhost:9092", "kafka broker")
	topic := flag.String("topic", "product_views", "topic")
	visitorID := flag.String("visitor", "v_demo", "visitor id")
	handle := flag.String("handle", "demo-mug", "product handle")
	title := flag.String("title", "Demo Mug", "product title")
	price := flag.String("price", "¥1,000", "display price")
	flag.Parse()

	ev := events.ViewEvent{
		VisitorID: *visitorID,
		Product: recent.Product{
			Handle: *handle,
			Title:  *title,
			Price:  *price,
			URL:    "/products/" + *handle,
		},
	}

	value, err := json.Marshal(ev)
	if err != nil {
		log.Fatal(err)
	}

	w := &kafkago.Writer{
		Addr:     kafkago.TCP(*broker),
		Topic:    *topic,
		Balancer: &kafkago.LeastBytes{},
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(*visitorID),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		log.Fatal(err)
	}

	log.Printf("sent view event: visitor=%s handle=%s", *visitorID, *handle)
}
