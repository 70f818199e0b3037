package k4a

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Calibration is the sensor calibration a tracker is bound to. Raw carries the native record
// unchanged so the provider that produced it can hand it back to TrackerCreate.
type Calibration struct {
	DepthMode       DepthMode
	ColorResolution ColorResolution
	DepthWidth      int
	DepthHeight     int
	Raw             []byte
}

// Joint identifies one of the tracked skeleton joints.
type Joint int

// Skeleton joints, in native order.
const (
	JointPelvis Joint = iota
	JointSpineNavel
	JointSpineChest
	JointNeck
	JointClavicleLeft
	JointShoulderLeft
	JointElbowLeft
	JointWristLeft
	JointHandLeft
	JointHandTipLeft
	JointThumbLeft
	JointClavicleRight
	JointShoulderRight
	JointElbowRight
	JointWristRight
	JointHandRight
	JointHandTipRight
	JointThumbRight
	JointHipLeft
	JointKneeLeft
	JointAnkleLeft
	JointFootLeft
	JointHipRight
	JointKneeRight
	JointAnkleRight
	JointFootRight
	JointHead
	JointNose
	JointEyeLeft
	JointEarLeft
	JointEyeRight
	JointEarRight

	// JointCount is the number of joints in a Skeleton.
	JointCount
)

var jointNames = [JointCount]string{
	"pelvis", "spine_navel", "spine_chest", "neck",
	"clavicle_left", "shoulder_left", "elbow_left", "wrist_left", "hand_left", "handtip_left", "thumb_left",
	"clavicle_right", "shoulder_right", "elbow_right", "wrist_right", "hand_right", "handtip_right", "thumb_right",
	"hip_left", "knee_left", "ankle_left", "foot_left",
	"hip_right", "knee_right", "ankle_right", "foot_right",
	"head", "nose", "eye_left", "ear_left", "eye_right", "ear_right",
}

func (j Joint) String() string {
	if j >= 0 && j < JointCount {
		return jointNames[j]
	}
	return fmt.Sprintf("Joint(%d)", int(j))
}

// JointConfidence is the tracker's confidence in a joint pose.
type JointConfidence int

// Confidence levels.
const (
	ConfidenceNone JointConfidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c JointConfidence) String() string {
	switch c {
	case ConfidenceNone:
		return "none"
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return fmt.Sprintf("JointConfidence(%d)", int(c))
	}
}

// JointPose is the position (millimetres, depth camera space) and orientation of one joint.
type JointPose struct {
	Position    r3.Vector
	Orientation quat.Number
	Confidence  JointConfidence
}

// Skeleton holds one pose per Joint.
type Skeleton struct {
	Joints [JointCount]JointPose
}

// Joint returns the pose of joint j.
func (s *Skeleton) Joint(j Joint) JointPose {
	return s.Joints[j]
}
