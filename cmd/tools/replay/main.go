package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"exchange/internal/codec"
	"exchange/internal/schema"
	"exchange/internal/state"
	"exchange/internal/store"
)

func main() {
	dir := flag.String("dir", "testdata/exchange", "Disk store directory")
	from := flag.Int64("from", 0, "First sequence to print")
	to := flag.Int64("to", 0, "Last sequence to print (0=all)")
	decode := flag.Bool("decode", false, "Print command fields")
	snapshots := flag.Bool("snapshots", true, "List snapshot files")
	flag.Parse()

	ctx := context.Background()
	batches, err := store.ReadJournal(ctx, filepath.Join(*dir, "journal"))
	if err != nil {
		log.Fatalf("read journal failed: %v", err)
	}

	var records int
	for _, b := range batches {
		if *to > 0 && b.FirstSeq > *to {
			break
		}
		if b.LastSeq < *from {
			continue
		}
		fmt.Printf("batch id=%d seq=%d..%d records=%d\n", b.ID, b.FirstSeq, b.LastSeq, len(b.Records))
		for i := range b.Records {
			rec := &b.Records[i]
			if rec.Seq < *from || (*to > 0 && rec.Seq > *to) {
				continue
			}
			records++
			fmt.Printf("  %08d %s uid=%d ts=%d\n", rec.Seq, rec.Kind, rec.UID, rec.Timestamp)
			if *decode {
				printDecoded(rec)
			}
		}
	}
	fmt.Printf("batches=%d records=%d\n", len(batches), records)

	if !*snapshots {
		return
	}
	snapDir := filepath.Join(*dir, "snapshots")
	entries, err := state.List(snapDir)
	if err != nil {
		log.Fatalf("list snapshots failed: %v", err)
	}
	for _, e := range entries {
		snap, err := state.ReadSnapshot(state.Path(snapDir, e.StateID, e.Shard))
		if err != nil {
			fmt.Printf("snapshot state=%d shard=%s error=%v\n", e.StateID, e.Shard, err)
			continue
		}
		fmt.Printf("snapshot state=%d shard=%s seq=%d bytes=%d\n", snap.StateID, snap.Shard, snap.Seq, len(snap.Data))
	}
}

func printDecoded(cmd *schema.Command) {
	switch cmd.Kind {
	case schema.CommandPlaceOrder:
		fmt.Printf("    symbol=%d order=%d side=%s type=%s price=%d size=%d\n",
			cmd.Symbol, cmd.OrderID, cmd.Side, cmd.OrderType, cmd.Price, cmd.Size)
	case schema.CommandCancelOrder, schema.CommandReduceOrder:
		fmt.Printf("    symbol=%d order=%d size=%d\n", cmd.Symbol, cmd.OrderID, cmd.Size)
	case schema.CommandOrderBookRequest:
		fmt.Printf("    symbol=%d depth=%d\n", cmd.Symbol, cmd.Size)
	case schema.CommandBalanceAdjustment:
		fmt.Printf("    currency=%d amount=%d tx=%d\n", cmd.Currency, cmd.Amount, cmd.TransactionID)
	case schema.CommandPersistStateMatching, schema.CommandPersistStateRisk:
		fmt.Printf("    state=%d\n", cmd.StateID)
	case schema.CommandBinaryData:
		specs, ok := codec.DecodeSymbolBatch(cmd.Data)
		if !ok {
			fmt.Printf("    transfer=%d undecodable %d bytes\n", cmd.TransferID, len(cmd.Data))
			return
		}
		for _, spec := range specs {
			fmt.Printf("    symbol=%d type=%s base=%d quote=%d\n", spec.ID, spec.Type, spec.BaseCurrency, spec.QuoteCurrency)
		}
	}
}
