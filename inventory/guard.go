/*
guard.go - Status hierarchy guard

PURPOSE:
  Validates that a product group -> product -> lot chain is active before
  a movement may post against it. Pure reads, no side effects.

CONTRACT:
  AssertPostable(lotID) -> (Lot, error)
    - NotFound  if the lot is absent
    - Inactive  if the lot's own flag is false, or its product is
      absent/inactive, or that product's group is absent/inactive

  Only a lot reference is taken. The caller supplies the expected product
  id separately, and the orchestrator checks lot.ProductID against it
  AFTER the guard returns - a lot posted against the wrong product is
  ProductMismatch, a distinct condition from anything the guard reports.

  Traversal is explicit sequential lookups by id. No object graph.
*/
package inventory

import "context"

// StatusGuard validates the active status of the product hierarchy.
type StatusGuard struct {
	Masters MasterReader
}

func NewStatusGuard(masters MasterReader) *StatusGuard {
	return &StatusGuard{Masters: masters}
}

// AssertPostable checks the whole chain above the lot and returns the lot
// on success.
func (g *StatusGuard) AssertPostable(ctx context.Context, lotID LotID) (*Lot, error) {
	lot, err := g.Masters.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		return nil, &NotFoundError{Kind: "lot", ID: string(lotID)}
	}
	if !lot.IsActive {
		return nil, &InactiveError{Level: "lot", ID: string(lotID)}
	}

	product, err := g.Masters.GetProduct(ctx, lot.ProductID)
	if err != nil {
		return nil, err
	}
	// An absent parent blocks posting the same way an inactive one does.
	if product == nil || !product.IsActive {
		return nil, &InactiveError{Level: "product", ID: string(lot.ProductID)}
	}

	group, err := g.Masters.GetGroup(ctx, product.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil || !group.IsActive {
		return nil, &InactiveError{Level: "product group", ID: string(product.GroupID)}
	}

	return lot, nil
}
