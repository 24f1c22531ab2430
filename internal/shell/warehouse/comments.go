package warehouse

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// =============================================================================
// Comments Table
// =============================================================================

// Comment is an operator note attached to one order/SKU pair.
type Comment struct {
	ID        string    `bigquery:"id" json:"id"`
	OrderID   string    `bigquery:"order_id" json:"order_id"`
	SKU       string    `bigquery:"sku" json:"sku"`
	Author    string    `bigquery:"author" json:"author"`
	Text      string    `bigquery:"text" json:"text"`
	CreatedAt time.Time `bigquery:"created_at" json:"created_at"`
}

// AddComment stores a comment. A zero CreatedAt is stamped with the current
// time and a missing ID is generated.
func (s *Service) AddComment(ctx context.Context, c Comment) (Comment, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = nowUTC()
	}

	client, err := s.bq(ctx)
	if err != nil {
		return Comment{}, err
	}
	ins := client.Dataset(s.cfg.Dataset).Table(s.cfg.CommentsTable).Inserter()
	if err := ins.Put(ctx, c); err != nil {
		return Comment{}, NewWarehouseError("AddComment", "comment", c.OrderID, err.Error(), err)
	}
	s.logger.Info("added comment", "order_id", c.OrderID, "sku", c.SKU, "author", c.Author)
	return c, nil
}

// Comments returns comments matching the order and/or SKU filters, oldest
// first. An empty filter matches everything.
func (s *Service) Comments(ctx context.Context, orderID, sku string) ([]Comment, error) {
	client, err := s.bq(ctx)
	if err != nil {
		return nil, err
	}

	q := client.Query(fmt.Sprintf(`
SELECT id, order_id, sku, author, text, created_at FROM %s
WHERE (@order_id = '' OR order_id = @order_id)
  AND (@sku = '' OR sku = @sku)
ORDER BY created_at ASC
`, s.tableRef(s.cfg.CommentsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "order_id", Value: orderID},
		{Name: "sku", Value: sku},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, NewWarehouseError("Comments", "comment", orderID, err.Error(), err)
	}

	var out []Comment
	for {
		var c Comment
		err := it.Next(&c)
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, NewWarehouseError("Comments", "comment", orderID, err.Error(), err)
		}
		out = append(out, c)
	}
}
