package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
)

// SequenceStub hands out deterministic codes without Redis.
type SequenceStub struct {
	n atomic.Int64
}

func (s *SequenceStub) next(prefix string) (string, error) {
	return fmt.Sprintf("%s-%06d", prefix, s.n.Add(1)), nil
}

func (s *SequenceStub) NextOrderCode(ctx context.Context) (string, error) {
	return s.next("ORD")
}

func (s *SequenceStub) NextInvoiceCode(ctx context.Context) (string, error) {
	return s.next("INV")
}

func (s *SequenceStub) NextTicketCode(ctx context.Context) (string, error) {
	return s.next("TKT")
}

func (s *SequenceStub) NextPayoutCode(ctx context.Context) (string, error) {
	return s.next("PAY")
}
