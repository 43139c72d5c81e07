package materials

// deriveItemStatus is the single status derivation for a request line,
// a deterministic function of (requested, approved, rejected, received).
// An undecided line stays Pending; this guard keeps untouched lines from
// being re-labelled Rejected when approved defaults to zero.
func deriveItemStatus(item RequestItem) ItemStatus {
	if item.ApprovedQty == nil {
		return StatusPending
	}
	approved := *item.ApprovedQty

	status := StatusPending
	switch {
	case approved == item.Quantity:
		status = StatusApproved
	case approved > 0 && approved < item.Quantity:
		status = StatusPartiallyApproved
	case approved == 0:
		status = StatusRejected
	}

	// Receipt progress overrides the approval status.
	if item.ReceivedQty == approved && approved > 0 {
		return StatusReceived
	}
	if item.ReceivedQty > 0 && item.ReceivedQty < approved {
		return StatusPartiallyReceived
	}
	return status
}

// foldRequestStatus folds line statuses into the request status.
// First match wins; the order resolves mixed line statuses.
func foldRequestStatus(items []RequestItem) ItemStatus {
	if len(items) == 0 {
		return StatusPending
	}
	switch {
	case every(items, StatusReceived):
		return StatusReceived
	case some(items, StatusPartiallyReceived, StatusReceived):
		return StatusPartiallyReceived
	case every(items, StatusApproved):
		return StatusApproved
	case every(items, StatusRejected):
		return StatusRejected
	case some(items, StatusPartiallyApproved, StatusApproved):
		return StatusPartiallyApproved
	default:
		return StatusPending
	}
}

// deriveStatuses recomputes every line status and the request status.
// It runs after any item mutation so stored statuses are never stale.
func deriveStatuses(req *Request) {
	for i := range req.Items {
		req.Items[i].Status = deriveItemStatus(req.Items[i])
	}
	req.Status = foldRequestStatus(req.Items)
}

func every(items []RequestItem, status ItemStatus) bool {
	for _, item := range items {
		if item.Status != status {
			return false
		}
	}
	return true
}

func some(items []RequestItem, statuses ...ItemStatus) bool {
	for _, item := range items {
		for _, status := range statuses {
			if item.Status == status {
				return true
			}
		}
	}
	return false
}
