package invoice

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimart/medimart/internal/domain/order"
)

// Number formats INV-<PROVIDER8>-<YYYYMMDD>-<ORDER8>. The date is taken in
// UTC so the number does not depend on the server's zone.
func Number(providerID, orderID uuid.UUID, issued time.Time) string {
	return fmt.Sprintf("INV-%s-%s-%s", order.ShortID(providerID), issued.UTC().Format("20060102"), order.ShortID(orderID))
}
