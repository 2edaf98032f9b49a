/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

// Topic names an event category.
type Topic string

const (
	// Consumed from the audio bridge and control surfaces.
	TopicAnalysisComplete  Topic = "ai:analysis:complete"
	TopicDeckPlay          Topic = "audio:deck:play"
	TopicDeckPause         Topic = "audio:deck:pause"
	TopicTransitionTrigger Topic = "transition:trigger"
	TopicRitualTrigger     Topic = "ritual:trigger"

	// Mixer commands
	TopicMixerCrossfader Topic = "mixer:set-crossfader"
	TopicMixerVolume     Topic = "mixer:volume"
	TopicMixerStemVolume Topic = "mixer:stem-volume"
	TopicEffectFilter    Topic = "effect:filter"
	TopicEffectPitch     Topic = "effect:pitch"
	TopicEffectReverb    Topic = "effect:reverb"
	TopicEffectEcho      Topic = "effect:echo"
	TopicEffectStutter   Topic = "effect:stutter"
	TopicEffectCompress  Topic = "effect:compress"
	TopicEffectEQ        Topic = "effect:eq"
	TopicEffectImpact    Topic = "effect:impact"
	TopicEffectReverse   Topic = "effect:reverse"
	TopicVisualStrobe    Topic = "visual:strobe"
	TopicVisualBlackout  Topic = "visual:blackout"

	// Transition lifecycle
	TopicTransitionStarted   Topic = "transition:started"
	TopicTransitionProgress  Topic = "transition:progress"
	TopicTransitionCompleted Topic = "transition:completed"
	TopicTransitionRejected  Topic = "transition:rejected"
	TopicRitualStarted       Topic = "ritual:started"
	TopicRitualCompleted     Topic = "ritual:completed"
	TopicBallotFinalized     Topic = "ritual:ballot-finalized"

	// Autopilot lifecycle
	TopicAutopilotStarted    Topic = "autopilot:started"
	TopicAutopilotStopped    Topic = "autopilot:stopped"
	TopicTransitionScheduled Topic = "autopilot:transition-scheduled"
	TopicSwitchExecuted      Topic = "autopilot:switch-executed"
	TopicRitualExecuted      Topic = "autopilot:ritual-executed"
	TopicEnergyUpdate        Topic = "autopilot:energy-update"
	TopicConfigUpdated       Topic = "autopilot:config-updated"
	TopicNextTrackNeeded     Topic = "autopilot:next-track-needed"
)

// Inbound lists the topics external collaborators may publish into the bus.
var Inbound = []Topic{
	TopicAnalysisComplete,
	TopicDeckPlay,
	TopicDeckPause,
	TopicTransitionTrigger,
	TopicRitualTrigger,
}

// IsInbound reports whether external collaborators may publish the topic.
func IsInbound(topic Topic) bool {
	for _, t := range Inbound {
		if t == topic {
			return true
		}
	}
	return false
}

// Outbound lists the topics external mixer and effect handlers act on.
var Outbound = []Topic{
	TopicMixerCrossfader,
	TopicMixerVolume,
	TopicMixerStemVolume,
	TopicEffectFilter,
	TopicEffectPitch,
	TopicEffectReverb,
	TopicEffectEcho,
	TopicEffectStutter,
	TopicEffectCompress,
	TopicEffectEQ,
	TopicEffectImpact,
	TopicEffectReverse,
	TopicVisualStrobe,
	TopicVisualBlackout,
	TopicTransitionStarted,
	TopicTransitionProgress,
	TopicTransitionCompleted,
	TopicTransitionRejected,
	TopicRitualStarted,
	TopicRitualCompleted,
	TopicBallotFinalized,
	TopicAutopilotStarted,
	TopicAutopilotStopped,
	TopicTransitionScheduled,
	TopicSwitchExecuted,
	TopicRitualExecuted,
	TopicEnergyUpdate,
	TopicConfigUpdated,
	TopicNextTrackNeeded,
}
