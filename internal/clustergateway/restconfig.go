package clustergateway

import (
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// LoadRESTConfig resolves the cluster's REST config: in-cluster config
// when the process runs as a pod, falling back to kubeconfigPath (or
// the client-go default loading rules if empty) otherwise. This is the
// same in-cluster-first, kubeconfig-fallback order every binary in
// this module resolves KUBECONFIG with.
func LoadRESTConfig(kubeconfigPath string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
}
