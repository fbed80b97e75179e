package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-order-progress/internal/progress"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-order-progress/pkg/errors"
)

// Viewer is the authenticated caller an order is read or cancelled for.
type Viewer struct {
	UserID  uuid.UUID
	StoreID *uuid.UUID
	Role    enums.ActorRole
}

func (v Viewer) validate() error {
	if v.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !v.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}
	if v.Role == enums.ActorRoleVendor && (v.StoreID == nil || *v.StoreID == uuid.Nil) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
	}
	return nil
}

// Scope returns the list restriction for the viewer.
func (v Viewer) Scope() Scope {
	switch v.Role {
	case enums.ActorRoleCustomer:
		id := v.UserID
		return Scope{CustomerID: &id}
	case enums.ActorRoleVendor:
		return Scope{VendorStoreID: v.StoreID}
	default:
		return Scope{}
	}
}

// CanView reports whether the viewer may read the order.
func (v Viewer) CanView(order progress.Order) bool {
	switch v.Role {
	case enums.ActorRoleAdmin:
		return true
	case enums.ActorRoleCustomer:
		return order.CustomerID == v.UserID.String()
	case enums.ActorRoleVendor:
		if v.StoreID == nil {
			return false
		}
		for _, vo := range order.VendorOrders {
			if vo.VendorStoreID == v.StoreID.String() {
				return true
			}
		}
	}
	return false
}

// CheckCancel decides whether the viewer may cancel vo, and as which party.
// Customers cancel inside their own orders, vendors only their own vendor
// orders. Admins read everything but cancel nothing.
func (v Viewer) CheckCancel(order progress.Order, vo progress.VendorOrder) (enums.CancelledBy, error) {
	party, ok := v.Role.CancelledBy()
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeForbidden, "role cannot cancel vendor orders")
	}
	switch v.Role {
	case enums.ActorRoleCustomer:
		if order.CustomerID != v.UserID.String() {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
		}
	case enums.ActorRoleVendor:
		if v.StoreID == nil || vo.VendorStoreID != v.StoreID.String() {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "vendor order does not belong to store")
		}
	}
	return party, nil
}
