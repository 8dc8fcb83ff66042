// Package fellowship implements a Discord bot for church fellowship
// servers.
//
// The bot answers slash commands received over the gateway websocket, or
// over HTTP when the webhook server is enabled:
//
//   - /age: Shows when your (or another user's) account was created.
//   - /legal_birthday: Saves your birthday to your profile.
//   - /quiet_time: Opens a form, and shares the submitted verses and
//     summary as an embed in the quiet time channel.
//   - /announcement: Posts a message to the channel.
//   - /register: Lets bot owners register or delete the commands.
//
// User profiles are stored in Redis as JSON, one key per user, through a
// [ProfileStore] that serializes access to a single connection. When a
// database is configured, every interaction is also written to an audit
// log (sqlite or postgres).
package fellowship
