package models

// FollowerEdge is one weighted "important account follows this account"
// edge in the reverse social graph.
type FollowerEdge struct {
	AccountID string  `json:"accountId" db:"follower_account_id"`
	Username  string  `json:"username" db:"follower_username"`
	Weight    float64 `json:"weight" db:"weight"`
}

// FollowingIndexEntry is one node of the reverse-graph importance index:
// a followed account together with the weighted set of important accounts
// following it. ImportanceScore is always the recomputed sum of edge
// weights, never hand-edited.
type FollowingIndexEntry struct {
	FollowedAccountID string         `json:"followedAccountId" db:"followed_account_id"`
	FollowedUsername  string         `json:"followedUsername" db:"followed_username"`
	FollowedBy        []FollowerEdge `json:"followedBy"`
	ImportanceScore   float64        `json:"importanceScore" db:"importance_score"`
}

// FollowedAccount is one entry of an important account's following list,
// as handed to the index sync operation.
type FollowedAccount struct {
	AccountID string `json:"accountId"`
	Username  string `json:"username"`
}
