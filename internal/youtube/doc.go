// Package youtube fetches transcripts and video metadata from YouTube watch
// pages.
//
// The watch page embeds a ytInitialPlayerResponse JSON document carrying the
// playability status, video details and caption track list. Caption tracks are
// downloaded as timedtext XML. Track selection prefers a manual track in the
// requested language, then an auto-generated track in that language, then the
// first track available.
//
// Failures carry services error kinds: unknown or private videos are
// not_found, videos without captions are disabled, HTTP 429 and bot checks are
// rate_limited, client timeouts are timeout, and 5xx responses are
// unavailable.
package youtube
