package shared

// Gated product features. Features are capability names evaluated
// independently of the HTTP routes that expose them.
const (
	FeaturePosts     = "posts"
	FeatureChat      = "chat"
	FeatureStreaming = "streaming"
	FeatureGifting   = "gifting"
	FeatureP2P       = "p2p"
	FeatureMatching  = "matching"
)

// Core platform permissions.
const (
	PermPostsWrite = "posts.write"
	PermChatSend   = "chat.send"
	PermStreamHost = "stream.host"
	PermGiftSend   = "gift.send"
	PermP2PTrade   = "p2p.trade"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPoliciesView = "policies.view"
	PermPoliciesEdit = "policies.edit"

	PermAuditView = "audit.view"
)

// Features lists all gated features.
func Features() []string {
	return []string{
		FeaturePosts,
		FeatureChat,
		FeatureStreaming,
		FeatureGifting,
		FeatureP2P,
		FeatureMatching,
	}
}
