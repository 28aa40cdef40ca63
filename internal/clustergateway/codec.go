package clustergateway

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
)

// serverSideApplyType is used for every Apply patch call.
const serverSideApplyType = types.ApplyPatchType

// execParameterCodec encodes PodExecOptions into URL query parameters
// for the exec subresource request, built from client-go's own scheme
// the same way kubectl's exec command does.
var execParameterCodec = runtime.NewParameterCodec(buildScheme())

func buildScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)
	_ = corev1.AddToScheme(scheme)
	return scheme
}
