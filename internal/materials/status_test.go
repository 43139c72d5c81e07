package materials

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestDeriveItemStatus(t *testing.T) {
	cases := []struct {
		name string
		item RequestItem
		want ItemStatus
	}{
		{"undecided stays pending", RequestItem{Quantity: 10}, StatusPending},
		{"fully approved", RequestItem{Quantity: 10, ApprovedQty: ptr(10)}, StatusApproved},
		{"partially approved", RequestItem{Quantity: 10, ApprovedQty: ptr(4), RejectedQty: 6}, StatusPartiallyApproved},
		{"fully rejected", RequestItem{Quantity: 10, ApprovedQty: ptr(0), RejectedQty: 10}, StatusRejected},
		{"partially received", RequestItem{Quantity: 10, ApprovedQty: ptr(8), ReceivedQty: 3}, StatusPartiallyReceived},
		{"fully received", RequestItem{Quantity: 10, ApprovedQty: ptr(8), ReceivedQty: 8}, StatusReceived},
		{"received overrides partial approval", RequestItem{Quantity: 10, ApprovedQty: ptr(4), RejectedQty: 6, ReceivedQty: 4}, StatusReceived},
		{"zero approval never counts as received", RequestItem{Quantity: 10, ApprovedQty: ptr(0)}, StatusRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, deriveItemStatus(tc.item))
		})
	}
}

func TestFoldRequestStatus(t *testing.T) {
	lines := func(statuses ...ItemStatus) []RequestItem {
		items := make([]RequestItem, len(statuses))
		for i, s := range statuses {
			items[i].Status = s
		}
		return items
	}

	cases := []struct {
		name  string
		items []RequestItem
		want  ItemStatus
	}{
		{"no lines", nil, StatusPending},
		{"all received", lines(StatusReceived, StatusReceived), StatusReceived},
		{"one line mid receipt", lines(StatusApproved, StatusPartiallyReceived), StatusPartiallyReceived},
		{"received mixed with approved", lines(StatusReceived, StatusApproved), StatusPartiallyReceived},
		{"all approved", lines(StatusApproved, StatusApproved), StatusApproved},
		{"all rejected", lines(StatusRejected, StatusRejected), StatusRejected},
		{"approved mixed with rejected", lines(StatusApproved, StatusRejected), StatusPartiallyApproved},
		{"partial approval anywhere", lines(StatusPartiallyApproved, StatusPending), StatusPartiallyApproved},
		{"undecided lines only", lines(StatusPending, StatusPending), StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, foldRequestStatus(tc.items))
		})
	}
}

func TestDeriveStatusesRecomputesEverything(t *testing.T) {
	req := Request{Items: []RequestItem{
		{Quantity: 5, ApprovedQty: ptr(5), ReceivedQty: 5},
		{Quantity: 4, ApprovedQty: ptr(4), ReceivedQty: 1},
	}}
	deriveStatuses(&req)
	require.Equal(t, StatusReceived, req.Items[0].Status)
	require.Equal(t, StatusPartiallyReceived, req.Items[1].Status)
	require.Equal(t, StatusPartiallyReceived, req.Status)
}
