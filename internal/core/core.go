/*
Core wires the exchange pipeline.

# Stages
  - sequencer: Submit assigns gap-free sequence numbers and publishes commands to the ring
  - risk shards (by uid): hold funds before matching, settle fills after matching
  - matching shards (by symbol): price-time matching, cancel, reduce, L2 queries
  - journal: folds per-shard outcomes into one result code, stores journal batches
  - publisher: delivers results to the consumer in sequence order

# Ordering
  - risk hold(seq) -> matching(seq) -> risk release(seq) -> journal(seq) -> publish(seq)
  - every shard handles sequences in order; shards of the same kind run in parallel

# Recovery
  - snapshots of every shard taken by the persist commands, plus journal replay through the live stages
*/
package core
