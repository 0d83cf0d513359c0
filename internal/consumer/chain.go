package consumer

import "context"

// Chain dispatches a message to multiple handlers in order. The first failure
// stops the chain so the offset is not committed and the message is retried.
type Chain []Handler

// Handle runs each handler against the message.
func (c Chain) Handle(ctx context.Context, msg Message) error {
	for _, handler := range c {
		if err := handler.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
