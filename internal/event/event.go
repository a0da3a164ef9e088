// Package event defines the replication protocol: a closed set of event
// kinds exchanged over the broadcast bus, and the envelope that carries
// them between processes.
package event

import (
	"github.com/roach88/lobbysync/internal/feed"
)

// Kind is the wire discriminator of an event.
type Kind string

const (
	KindSyncRequest       Kind = "SYNC_REQUEST"
	KindSyncResponse      Kind = "SYNC_RESPONSE"
	KindNewPost           Kind = "NEW_POST"
	KindNewReply          Kind = "NEW_REPLY"
	KindDeletePost        Kind = "DELETE_POST"
	KindMetricUpdate      Kind = "METRIC_UPDATE"
	KindNewMessage        Kind = "NEW_MESSAGE"
	KindProfileUplink     Kind = "PROFILE_UPLINK"
	KindFollowUpdate      Kind = "FOLLOW_UPDATE"
	KindLiveViewHeartbeat Kind = "LIVE_VIEW_HEARTBEAT"
	KindPresence          Kind = "PRESENCE"
)

// Event is implemented only by the types in this package.
type Event interface {
	Kind() Kind
	sealed()
}

// SyncRequest asks peers for their full state.
type SyncRequest struct{}

// SyncResponse carries a peer's full posts and messages snapshot.
type SyncResponse struct {
	Posts    []feed.Post          `json:"posts"`
	Messages []feed.DirectMessage `json:"messages"`
}

// NewPost announces a root-level post.
type NewPost struct {
	Post feed.Post `json:"post"`
}

// NewReply announces a reply under ParentID.
type NewReply struct {
	ParentID string    `json:"parentId"`
	Post     feed.Post `json:"post"`
}

// DeletePost removes a post and its subtree.
type DeletePost struct {
	PostID string `json:"postId"`
}

// MetricUpdate records UserHandle's like, share, or view on PostID.
type MetricUpdate struct {
	PostID     string      `json:"postId"`
	Metric     feed.Metric `json:"metric"`
	UserHandle string      `json:"userHandle"`
}

// NewMessage appends a direct message.
type NewMessage struct {
	Message feed.DirectMessage `json:"message"`
}

// ProfileUplink publishes an updated profile.
type ProfileUplink struct {
	Profile feed.Profile `json:"user"`
}

// FollowUpdate sets the follow edge FollowerHandle -> FollowedHandle.
type FollowUpdate struct {
	FollowerHandle string            `json:"followerHandle"`
	FollowedHandle string            `json:"followedHandle"`
	Action         feed.FollowAction `json:"action"`
}

// LiveViewHeartbeat says the sending process is currently viewing PostID.
type LiveViewHeartbeat struct {
	PostID string `json:"postId"`
}

// Presence is the periodic liveness beacon of a process.
type Presence struct {
	Profile feed.Profile `json:"user"`
}

func (SyncRequest) Kind() Kind       { return KindSyncRequest }
func (SyncResponse) Kind() Kind      { return KindSyncResponse }
func (NewPost) Kind() Kind           { return KindNewPost }
func (NewReply) Kind() Kind          { return KindNewReply }
func (DeletePost) Kind() Kind        { return KindDeletePost }
func (MetricUpdate) Kind() Kind      { return KindMetricUpdate }
func (NewMessage) Kind() Kind        { return KindNewMessage }
func (ProfileUplink) Kind() Kind     { return KindProfileUplink }
func (FollowUpdate) Kind() Kind      { return KindFollowUpdate }
func (LiveViewHeartbeat) Kind() Kind { return KindLiveViewHeartbeat }
func (Presence) Kind() Kind          { return KindPresence }

func (SyncRequest) sealed()       {}
func (SyncResponse) sealed()      {}
func (NewPost) sealed()           {}
func (NewReply) sealed()          {}
func (DeletePost) sealed()        {}
func (MetricUpdate) sealed()      {}
func (NewMessage) sealed()        {}
func (ProfileUplink) sealed()     {}
func (FollowUpdate) sealed()      {}
func (LiveViewHeartbeat) sealed() {}
func (Presence) sealed()          {}
